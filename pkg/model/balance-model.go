package model

import (
	"github.com/shopspring/decimal"
)

// Balance model
// One row per (owner, asset) pair. Amount is an integer in the asset's
// native precision, rows are never deleted, zero is a valid terminal value.
type Balance struct {
	ID int64 `json:"id" gorm:"omitempty; primaryKey;"`

	Owner string `json:"owner" gorm:"omitempty; not null; default:''; type:varchar(64); uniqueindex:idx_b_owner_asset;"`
	Asset string `json:"asset" gorm:"omitempty; not null; default:''; type:varchar(16); uniqueindex:idx_b_owner_asset;"`

	Amount decimal.Decimal `json:"amount" gorm:"omitempty; not null; default:0; type:decimal(65,0);"`

	Model
}
