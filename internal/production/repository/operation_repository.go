package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Gucbir/gucbirnest/internal/production/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OperationRepository struct {
	db *gorm.DB
}

func NewOperationRepository(db *gorm.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

// FindOperationByID loads one operation.
func (r *OperationRepository) FindOperationByID(tx *gorm.DB, id string) (*entity.ProductionOperation, error) {
	var op entity.ProductionOperation
	err := tx.First(&op, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// FindOperation returns the operation of an order at a stage, nil if absent.
func (r *OperationRepository) FindOperation(tx *gorm.DB, orderID, stageCode string) (*entity.ProductionOperation, error) {
	var op entity.ProductionOperation
	err := tx.First(&op, "order_id = ? AND stage_code = ?", orderID, stageCode).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// EnsureOperation creates the operation of an order at a stage if it does not
// exist yet. Safe under concurrent callers through the unique index on
// (order_id, stage_code).
func (r *OperationRepository) EnsureOperation(tx *gorm.DB, orderID string, stage entity.StageInfo) (*entity.ProductionOperation, error) {
	op := entity.ProductionOperation{
		ID:         uuid.New().String(),
		OrderID:    orderID,
		StageCode:  stage.Code,
		Sequence:   stage.Sequence,
		Department: stage.Department,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}, {Name: "stage_code"}},
		DoNothing: true,
	}).Create(&op).Error
	if err != nil {
		return nil, err
	}
	return r.FindOperation(tx, orderID, stage.Code)
}

// OpenOperationUnits inserts waiting rows for the given units at an
// operation. Existing (operation, unit) rows are left untouched.
func (r *OperationRepository) OpenOperationUnits(tx *gorm.DB, operationID string, unitIDs []string) error {
	if len(unitIDs) == 0 {
		return nil
	}
	rows := make([]entity.ProductionOperationUnit, 0, len(unitIDs))
	for _, unitID := range unitIDs {
		rows = append(rows, entity.ProductionOperationUnit{
			ID:          uuid.New().String(),
			OperationID: operationID,
			UnitID:      unitID,
			Status:      entity.OpUnitStatusWaiting,
		})
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "operation_id"}, {Name: "unit_id"}},
		DoNothing: true,
	}).Create(&rows).Error
}

// FindOperationUnit loads one unit row of an operation, optionally locking it
// for the duration of the transaction.
func (r *OperationRepository) FindOperationUnit(tx *gorm.DB, operationID, unitID string, forUpdate bool) (*entity.ProductionOperationUnit, error) {
	q := tx.Session(&gorm.Session{})
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row entity.ProductionOperationUnit
	err := q.First(&row, "operation_id = ? AND unit_id = ?", operationID, unitID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// LockUnitRowsAtStages locks and returns the rows of one unit across the
// operations of the given stages. Used for join evaluation.
func (r *OperationRepository) LockUnitRowsAtStages(tx *gorm.DB, orderID, unitID string, stageCodes []string) ([]entity.ProductionOperationUnit, error) {
	var rows []entity.ProductionOperationUnit
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Joins("JOIN production_operations ON production_operations.id = production_operation_units.operation_id").
		Where("production_operations.order_id = ? AND production_operations.stage_code IN ?", orderID, stageCodes).
		Where("production_operation_units.unit_id = ?", unitID).
		Find(&rows).Error
	return rows, err
}

func (r *OperationRepository) SaveOperationUnit(tx *gorm.DB, row *entity.ProductionOperationUnit) error {
	return tx.Save(row).Error
}

// AppendLog writes one audit row for a unit action.
func (r *OperationRepository) AppendLog(tx *gorm.DB, log *entity.OperationUnitLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	return tx.Create(log).Error
}

// CreateOperationItems inserts the material lines of an operation.
func (r *OperationRepository) CreateOperationItems(tx *gorm.DB, items []entity.OperationItem) error {
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}

func (r *OperationRepository) ListOperationItems(ctx context.Context, operationID string) ([]entity.OperationItem, error) {
	var items []entity.OperationItem
	err := r.db.WithContext(ctx).
		Where("operation_id = ?", operationID).
		Order("item_code ASC").
		Find(&items).Error
	return items, err
}

// ListStageQueue returns the unit rows currently attached to a stage across
// all orders, newest orders first.
func (r *OperationRepository) ListStageQueue(ctx context.Context, stageCode string, statuses []string) ([]entity.ProductionOperationUnit, error) {
	q := r.db.WithContext(ctx).
		Preload("Unit").
		Preload("Unit.Order").
		Preload("Operation").
		Joins("JOIN production_operations ON production_operations.id = production_operation_units.operation_id").
		Where("production_operations.stage_code = ?", stageCode)
	if len(statuses) > 0 {
		q = q.Where("production_operation_units.status IN ?", statuses)
	}
	var rows []entity.ProductionOperationUnit
	err := q.Order("production_operation_units.created_at ASC").Find(&rows).Error
	return rows, err
}

// ListUnitHistory returns every stage row of a unit with its operation, in
// route order. Used for elapsed-time accounting.
func (r *OperationRepository) ListUnitHistory(ctx context.Context, unitID string) ([]entity.ProductionOperationUnit, error) {
	var rows []entity.ProductionOperationUnit
	err := r.db.WithContext(ctx).
		Preload("Operation").
		Joins("JOIN production_operations ON production_operations.id = production_operation_units.operation_id").
		Where("production_operation_units.unit_id = ?", unitID).
		Order("production_operations.sequence ASC").
		Find(&rows).Error
	return rows, err
}

// CountUnfinishedAtStage counts unit rows of an order's stage that are not
// done yet.
func (r *OperationRepository) CountUnfinishedAtStage(tx *gorm.DB, operationID string) (int64, error) {
	var count int64
	err := tx.Model(&entity.ProductionOperationUnit{}).
		Where("operation_id = ? AND status <> ?", operationID, entity.OpUnitStatusDone).
		Count(&count).Error
	return count, err
}

// UpsertAlternativeSelection records the chosen alternative for a unit's
// material, replacing any earlier pick for the same original item.
func (r *OperationRepository) UpsertAlternativeSelection(tx *gorm.DB, sel *entity.AlternativeSelection) error {
	if sel.ID == "" {
		sel.ID = uuid.New().String()
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "operation_id"}, {Name: "unit_id"}, {Name: "original_item_code"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"selected_item_code": sel.SelectedItemCode,
			"selected_item_name": sel.SelectedItemName,
			"user_id":            sel.UserID,
			"updated_at":         time.Now(),
		}),
	}).Create(sel).Error
}

func (r *OperationRepository) AppendAlternativeLog(tx *gorm.DB, log *entity.AlternativeLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	return tx.Create(log).Error
}
