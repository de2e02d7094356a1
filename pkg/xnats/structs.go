package xnats

// DepositReq asks the vault to credit an owner, sent over NATS by ingress.
// Amount is an integer in the asset's native precision, as a decimal string.
type DepositReq struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	Time   int64  `json:"time"` // request creation time, in nanoseconds
}

// WithdrawReq asks the vault to pay an owner out.
type WithdrawReq struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	Time   int64  `json:"time"`
}

type VaultMsg struct {
	Type string `json:"type"`

	DepositReq  *DepositReq  `json:"depositReq,omitempty"`
	WithdrawReq *WithdrawReq `json:"withdrawReq,omitempty"`
}

const (
	VaultMsgTypeDepositReq  = "DepositReq"
	VaultMsgTypeWithdrawReq = "WithdrawReq"
)
