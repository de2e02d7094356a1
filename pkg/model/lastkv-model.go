package model

// Lastkv model
//
// Used to record some values. For example, the latest seq of nats messages,
// because requests also arrive in-process without a seq, it needs to be
// recorded here separately.
type Lastkv struct {
	ID int64 `json:"id" gorm:"omitempty; primaryKey;"`

	App string `json:"app" gorm:"omitempty; not null; default:''; type:varchar(64); uniqueindex:idx_app_key;"` // e.g vault
	Key string `json:"key" gorm:"omitempty; not null; default:''; type:varchar(64); uniqueindex:idx_app_key;"` // e.g nats_seq
	Val int64  `json:"val" gorm:"omitempty; not null; default:0;"`

	Model
}

const (
	LASTKV_K_NATS_SEQ     = "nats_seq"
	LASTKV_K_SAVED_LOG_ID = "saved_log_id"
)
