package model

// Asset model
// Registry configuration for one asset. Supported flips to false on
// removal, the row stays so residual balances remain attributable.
type Asset struct {
	ID int64 `json:"id" gorm:"omitempty; primaryKey;"`

	Asset     string `json:"asset" gorm:"omitempty; not null; default:''; type:varchar(16); unique;"`
	Decimals  uint8  `json:"decimals" gorm:"omitempty; not null; default:0; type:tinyint unsigned;"`
	Supported bool   `json:"supported" gorm:"omitempty; not null; type:tinyint(1); default:0;"`
	ListIndex int    `json:"listIndex" gorm:"omitempty; not null; default:0;"` // position in the iteration list

	SourceKind   string  `json:"sourceKind" gorm:"omitempty; not null; default:''; type:varchar(16);"` // e.g. static
	SourceParams GormMap `json:"sourceParams" gorm:"omitempty;"`

	Model
}
