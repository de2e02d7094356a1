// Package model defines the database models and keeps the mysql connection instance.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type Model struct {
	Status    int8      `json:"status" gorm:"omitempty; not null; type:tinyint; default:1;"`
	CreatedAt time.Time `json:"createdAt" gorm:"omitempty; not null; default:CURRENT_TIMESTAMP(3);"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"omitempty; not null; default:CURRENT_TIMESTAMP(3);"`
}

// GormMap is a gorm customer datatype, for storing maps in mysql using json
type GormMap map[string]interface{}

func (a GormMap) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	return string(b), err
}

func (a *GormMap) Scan(input interface{}) error {
	return json.Unmarshal(input.([]byte), a)
}

func (a GormMap) GormDataType() string {
	return "json"
}

func (a GormMap) V() map[string]interface{} {
	return map[string]interface{}(a)
}
