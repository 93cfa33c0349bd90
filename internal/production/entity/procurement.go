package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PurchaseRequestStatusDraft = "draft"

	PurchaseRequestSourceMaterialShortage = "MATERIAL_SHORTAGE"
)

// ShortageLine is one computed shortage, possibly with one level of
// sub-assembly children.
type ShortageLine struct {
	ItemCode string          `json:"itemCode"`
	ItemName string          `json:"itemName,omitempty"`
	WhsCode  string          `json:"whsCode"`
	Required decimal.Decimal `json:"required"`
	InStock  decimal.Decimal `json:"inStock"`
	Missing  decimal.Decimal `json:"missing"`
	Children []ShortageLine  `json:"children,omitempty"`
}

// ShortageLines stores a shortage tree as a jsonb column.
type ShortageLines []ShortageLine

func (s ShortageLines) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal(ShortageLines{})
	}
	return json.Marshal(s)
}

func (s *ShortageLines) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan ShortageLines: %v", value)
	}
	return json.Unmarshal(bytes, s)
}

// MaterialShortageRun is a persisted shortage computation: the request that
// triggered it plus the resulting lines.
type MaterialShortageRun struct {
	ID           string          `json:"id" gorm:"primaryKey;size:36"`
	ItemCode     string          `json:"item_code" gorm:"size:64;not null;index"`
	RequestedQty decimal.Decimal `json:"requested_qty" gorm:"type:numeric(18,6);not null"`
	WhsCode      string          `json:"whs_code" gorm:"size:16"`
	Payload      JSONB           `json:"payload" gorm:"type:jsonb"`
	Shortages    ShortageLines   `json:"shortages" gorm:"type:jsonb"`
	OK           bool            `json:"ok" gorm:"not null;default:false"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (MaterialShortageRun) TableName() string {
	return "material_shortage_runs"
}

// PurchaseRequest is a draft procurement document generated from a shortage
// run. At most one request exists per run.
type PurchaseRequest struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	MaterialRunID   string    `json:"material_run_id" gorm:"size:36;not null;uniqueIndex"`
	Source          string    `json:"source" gorm:"size:32;not null"`
	Status          string    `json:"status" gorm:"size:16;not null;default:draft"`
	Note            string    `json:"note,omitempty" gorm:"type:text"`
	CreatedByUserID string    `json:"created_by_user_id,omitempty" gorm:"size:36"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Items []PurchaseRequestItem `json:"items,omitempty" gorm:"foreignKey:RequestID"`
}

func (PurchaseRequest) TableName() string {
	return "purchase_requests"
}

// PurchaseRequestItem is one line of a purchase request.
type PurchaseRequestItem struct {
	ID             string          `json:"id" gorm:"primaryKey;size:36"`
	RequestID      string          `json:"request_id" gorm:"size:36;not null;index"`
	ItemCode       string          `json:"item_code" gorm:"size:64;not null"`
	ItemName       string          `json:"item_name" gorm:"size:256"`
	WhsCode        string          `json:"whs_code" gorm:"size:16"`
	Quantity       decimal.Decimal `json:"quantity" gorm:"type:numeric(18,6);not null"`
	ParentItemCode string          `json:"parent_item_code,omitempty" gorm:"size:64"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (PurchaseRequestItem) TableName() string {
	return "purchase_request_items"
}
