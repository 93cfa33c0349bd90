package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB maps a postgres jsonb column to a generic object.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

// SettingNameProductionSerial is the counter row consumed by serial allocation.
const SettingNameProductionSerial = "productionSerial"

// Setting is a named configuration document.
type Setting struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name" gorm:"size:64;not null;uniqueIndex"`
	Settings  JSONB     `json:"settings" gorm:"type:jsonb"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

// SerialCounter is the shape of the productionSerial setting document.
type SerialCounter struct {
	Prefix string `json:"prefix"`
	Next   int64  `json:"next"`
	Pad    int    `json:"pad"`
}

// DecodeSerialCounter reads the counter fields out of a settings document.
func DecodeSerialCounter(settings JSONB) (SerialCounter, error) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return SerialCounter{}, fmt.Errorf("encode settings: %w", err)
	}
	var c SerialCounter
	if err := json.Unmarshal(raw, &c); err != nil {
		return SerialCounter{}, fmt.Errorf("decode serial counter: %w", err)
	}
	return c, nil
}

// Format renders the serial for the counter's current position.
func (c SerialCounter) Format() string {
	return fmt.Sprintf("%s%0*d", c.Prefix, c.Pad, c.Next)
}
