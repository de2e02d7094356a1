package vault

import (
	"math/big"

	"github.com/google/btree"
)

// VaultLog  one journaled mutation, a single JSON line in filedb
type VaultLog struct {
	LogID  int64  `json:"logID"`
	Ts     int64  `json:"ts"`
	MsgSeq uint64 `json:"msgSeq,omitempty"` // NATS msg stream sequence

	BalanceLogs []BalanceLog `json:"balances,omitempty"`
	AssetLogs   []AssetLog   `json:"assets,omitempty"`
}

// BalanceLog  balance movement, also the payload of Deposit/Withdrawal/
// EmergencyWithdrawal boundary events
type BalanceLog struct {
	LogIndex int64 `json:"logIndex"`

	Reason string `json:"reason"` // Deposit, Withdrawal, WithdrawalReverted, EmergencyWithdrawal

	Owner string `json:"owner"`
	Asset string `json:"asset"`

	AmountChange string `json:"amountChange"` // signed, native precision
	AmountNew    string `json:"amountNew"`
	ValueUSD     string `json:"valueUSD"` // 6-decimal USD
	TotalUSDNew  string `json:"totalUSDNew"`

	DepositCount    int64 `json:"depositCount"`
	WithdrawalCount int64 `json:"withdrawalCount"`
}

// AssetLog  registry mutation, also the payload of AssetAdded/AssetRemoved events
type AssetLog struct {
	LogIndex int64 `json:"logIndex"`

	Reason string `json:"reason"` // AssetAdded, AssetRemoved

	Asset     string                 `json:"asset"`
	Decimals  uint8                  `json:"decimals"`
	ListIndex int                    `json:"listIndex"`
	Kind      string                 `json:"kind"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// Boundary event names, used as NATS subject suffixes
const (
	EventDeposit             = "Deposit"
	EventWithdrawal          = "Withdrawal"
	EventAssetAdded          = "AssetAdded"
	EventAssetRemoved        = "AssetRemoved"
	EventEmergencyWithdrawal = "EmergencyWithdrawal"

	// journal-only, written when a payout fails after its debit was journaled
	EventWithdrawalReverted = "WithdrawalReverted"
)

// Emitter publishes boundary events for external consumption. A nil
// emitter on the worker disables publishing.
type Emitter interface {
	Emit(event string, payload interface{})
}

// balanceItem  one (owner, asset) balance, ordered by owner then asset
type balanceItem struct {
	Owner  string
	Asset  string
	Amount *big.Int
}

func (a *balanceItem) Less(item btree.Item) bool {
	b := item.(*balanceItem)
	if a.Owner != b.Owner {
		return a.Owner < b.Owner
	}
	return a.Asset < b.Asset
}

// BankInfo is the query snapshot of the ledger totals and caps.
type BankInfo struct {
	TotalValueUSD      *big.Int
	BankCapUSD         *big.Int
	WithdrawalLimitUSD *big.Int
	DepositCount       int64
	WithdrawalCount    int64
	AssetCount         int
}
