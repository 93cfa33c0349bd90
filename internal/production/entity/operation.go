package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OpUnitStatusWaiting    = "waiting"
	OpUnitStatusInProgress = "in_progress"
	OpUnitStatusPaused     = "paused"
	OpUnitStatusDone       = "done"
)

const (
	ActionStart  = "start"
	ActionPause  = "pause"
	ActionResume = "resume"
	ActionFinish = "finish"
)

// ProductionOperation is one route stage of one order.
type ProductionOperation struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	OrderID    string    `json:"order_id" gorm:"size:36;not null;uniqueIndex:uniq_order_stage"`
	StageCode  string    `json:"stage_code" gorm:"size:32;not null;uniqueIndex:uniq_order_stage"`
	Sequence   int       `json:"sequence" gorm:"not null"`
	Department string    `json:"department" gorm:"size:32"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Items []OperationItem           `json:"items,omitempty" gorm:"foreignKey:OperationID"`
	Units []ProductionOperationUnit `json:"units,omitempty" gorm:"foreignKey:OperationID"`
}

func (ProductionOperation) TableName() string {
	return "production_operations"
}

// OperationItem is a material line consumed at a stage. Quantity covers the
// whole order (per-unit quantity times order quantity).
type OperationItem struct {
	ID          string          `json:"id" gorm:"primaryKey;size:36"`
	OperationID string          `json:"operation_id" gorm:"size:36;not null;index"`
	ItemCode    string          `json:"item_code" gorm:"size:64;not null"`
	ItemName    string          `json:"item_name" gorm:"size:256"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"type:numeric(18,6);not null"`
	WhsCode     string          `json:"whs_code" gorm:"size:16"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (OperationItem) TableName() string {
	return "production_operation_items"
}

// ProductionOperationUnit tracks one unit inside one stage. The pair
// (operation, unit) is unique; reopening an existing row is a no-op.
type ProductionOperationUnit struct {
	ID                 string     `json:"id" gorm:"primaryKey;size:36"`
	OperationID        string     `json:"operation_id" gorm:"size:36;not null;uniqueIndex:uniq_operation_unit"`
	UnitID             string     `json:"unit_id" gorm:"size:36;not null;uniqueIndex:uniq_operation_unit"`
	Status             string     `json:"status" gorm:"size:16;not null;default:waiting;index"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
	PausedAt           *time.Time `json:"paused_at,omitempty"`
	PausedTotalSeconds int64      `json:"paused_total_seconds" gorm:"not null;default:0"`
	Note               string     `json:"note,omitempty" gorm:"type:text"`
	LastActionByUserID string     `json:"last_action_by_user_id,omitempty" gorm:"size:36"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	Operation *ProductionOperation `json:"operation,omitempty" gorm:"foreignKey:OperationID"`
	Unit      *ProductionUnit      `json:"unit,omitempty" gorm:"foreignKey:UnitID"`
}

func (ProductionOperationUnit) TableName() string {
	return "production_operation_units"
}

// ActiveSeconds is the worked time of the unit at this stage, excluding the
// accumulated paused time. Never negative.
func (u *ProductionOperationUnit) ActiveSeconds(now time.Time) int64 {
	if u.StartedAt == nil {
		return 0
	}
	end := now
	if u.FinishedAt != nil {
		end = *u.FinishedAt
	}
	sec := int64(end.Sub(*u.StartedAt).Seconds()) - u.PausedTotalSeconds
	if sec < 0 {
		return 0
	}
	return sec
}

// OperationUnitLog is the append-only audit trail of unit actions.
type OperationUnitLog struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	OperationID string    `json:"operation_id" gorm:"size:36;not null;index"`
	UnitID      string    `json:"unit_id" gorm:"size:36;not null;index"`
	Action      string    `json:"action" gorm:"size:16;not null"`
	Reason      string    `json:"reason,omitempty" gorm:"size:256"`
	Note        string    `json:"note,omitempty" gorm:"type:text"`
	UserID      string    `json:"user_id,omitempty" gorm:"size:36"`
	CreatedAt   time.Time `json:"created_at"`
}

func (OperationUnitLog) TableName() string {
	return "production_operation_unit_logs"
}

// AlternativeSelection records an alternative material chosen for a unit at
// the first assembly stage.
type AlternativeSelection struct {
	ID               string    `json:"id" gorm:"primaryKey;size:36"`
	OperationID      string    `json:"operation_id" gorm:"size:36;not null;uniqueIndex:uniq_alt_selection"`
	UnitID           string    `json:"unit_id" gorm:"size:36;not null;uniqueIndex:uniq_alt_selection"`
	OriginalItemCode string    `json:"original_item_code" gorm:"size:64;not null;uniqueIndex:uniq_alt_selection"`
	SelectedItemCode string    `json:"selected_item_code" gorm:"size:64;not null"`
	SelectedItemName string    `json:"selected_item_name" gorm:"size:256"`
	UserID           string    `json:"user_id,omitempty" gorm:"size:36"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (AlternativeSelection) TableName() string {
	return "production_alternative_selections"
}

// AlternativeLog keeps every alternative pick, including overwritten ones.
type AlternativeLog struct {
	ID               string    `json:"id" gorm:"primaryKey;size:36"`
	OperationID      string    `json:"operation_id" gorm:"size:36;not null;index"`
	UnitID           string    `json:"unit_id" gorm:"size:36;not null;index"`
	OriginalItemCode string    `json:"original_item_code" gorm:"size:64;not null"`
	SelectedItemCode string    `json:"selected_item_code" gorm:"size:64;not null"`
	UserID           string    `json:"user_id,omitempty" gorm:"size:36"`
	CreatedAt        time.Time `json:"created_at"`
}

func (AlternativeLog) TableName() string {
	return "production_alternative_logs"
}
