package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is the local mirror of the ERP item master. The mirror is read-only
// from this service's point of view; it is populated out of band.
type Item struct {
	ItemCode  string    `json:"item_code" gorm:"primaryKey;size:64"`
	ItemName  string    `json:"item_name" gorm:"size:256"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Item) TableName() string {
	return "items"
}

// ItemWarehouseStock is the cached on-hand quantity per item and warehouse.
type ItemWarehouseStock struct {
	ItemCode  string          `json:"item_code" gorm:"primaryKey;size:64"`
	WhsCode   string          `json:"whs_code" gorm:"primaryKey;size:16"`
	InStock   decimal.Decimal `json:"in_stock" gorm:"type:numeric(18,6);not null;default:0"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (ItemWarehouseStock) TableName() string {
	return "item_warehouse_stocks"
}
