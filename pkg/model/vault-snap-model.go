package model

import (
	"github.com/shopspring/decimal"
)

// VaultSnap model
// One row per journaled mutation, carrying the post-mutation balance and
// ledger totals so the worker can resume from the latest row.
type VaultSnap struct {
	ID int64 `json:"id" gorm:"omitempty; primaryKey;"`

	LogType   int64 `json:"logType" gorm:"omitempty; not null; default:0; uniqueindex:idx_log_type_id_index"`
	LogID     int64 `json:"logID" gorm:"omitempty; not null; default:0; uniqueindex:idx_log_type_id_index"`
	LogIndex  int64 `json:"logIndex" gorm:"omitempty; not null; default:0; uniqueindex:idx_log_type_id_index"`
	LogOffset int64 `json:"logOffset" gorm:"omitempty; not null; default:0;"` // position in the journal file

	Reason string `json:"reason" gorm:"omitempty; not null; default:''; type:varchar(24);"` // Deposit, Withdrawal, EmergencyWithdrawal
	Owner  string `json:"owner" gorm:"omitempty; not null; default:''; type:varchar(64); index;"`
	Asset  string `json:"asset" gorm:"omitempty; not null; default:''; type:varchar(16); index;"`

	AmountChange decimal.Decimal `json:"amountChange" gorm:"omitempty; not null; default:0; type:decimal(65,0);"`
	AmountNew    decimal.Decimal `json:"amountNew" gorm:"omitempty; not null; default:0; type:decimal(65,0);"`
	ValueUSD     decimal.Decimal `json:"valueUSD" gorm:"omitempty; not null; default:0; type:decimal(36,6);"`
	TotalUSDNew  decimal.Decimal `json:"totalUSDNew" gorm:"omitempty; not null; default:0; type:decimal(36,6);"`

	DepositCount    int64 `json:"depositCount" gorm:"omitempty; not null; default:0;"`
	WithdrawalCount int64 `json:"withdrawalCount" gorm:"omitempty; not null; default:0;"`

	Model
}
