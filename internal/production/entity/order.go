package entity

import "time"

// Item code prefixes used by the ERP item master.
const (
	// SerializedItemPrefix marks final products tracked unit by unit.
	SerializedItemPrefix = "6."
	// SubAssemblyItemPrefix marks sub-assemblies that carry their own BOM.
	SubAssemblyItemPrefix = "5."
)

const (
	OrderStatusPlanned    = "planned"
	OrderStatusInProgress = "in_progress"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

// ProductionOrder is one manufacturing batch of a single item.
type ProductionOrder struct {
	ID               string    `json:"id" gorm:"primaryKey;size:36"`
	ItemCode         string    `json:"item_code" gorm:"size:64;not null;index"`
	ItemName         string    `json:"item_name" gorm:"size:256;not null"`
	Quantity         int       `json:"quantity" gorm:"not null"`
	Status           string    `json:"status" gorm:"size:16;not null;default:planned;index"`
	ShouldHaveSerial bool      `json:"should_have_serial" gorm:"not null;default:false"`
	SapDocEntry      *int      `json:"sap_doc_entry,omitempty" gorm:"index"`
	SapDocNum        *int      `json:"sap_doc_num,omitempty" gorm:"index"`
	Note             string    `json:"note,omitempty" gorm:"type:text"`
	CreatedByUserID  string    `json:"created_by_user_id,omitempty" gorm:"size:36"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	Units      []ProductionUnit      `json:"units,omitempty" gorm:"foreignKey:OrderID"`
	Operations []ProductionOperation `json:"operations,omitempty" gorm:"foreignKey:OrderID"`
}

func (ProductionOrder) TableName() string {
	return "production_orders"
}

// ProductionUnit is one physical unit of an order, identified by its serial.
type ProductionUnit struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	OrderID   string    `json:"order_id" gorm:"size:36;not null;index"`
	SerialNo  string    `json:"serial_no" gorm:"size:32;not null;uniqueIndex"`
	Status    string    `json:"status" gorm:"size:16;not null;default:planned"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Order *ProductionOrder `json:"order,omitempty" gorm:"foreignKey:OrderID"`
}

func (ProductionUnit) TableName() string {
	return "production_units"
}
