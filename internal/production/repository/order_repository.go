package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gucbir/gucbirnest/internal/production/entity"
	"gorm.io/gorm"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// FindByID loads an order with its units and operations.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.ProductionOrder, error) {
	var order entity.ProductionOrder
	err := r.db.WithContext(ctx).
		Preload("Units").
		Preload("Operations").
		First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindActiveByDocLink locates a non-cancelled order already created for the
// same ERP document line. Used for idempotent imports.
func (r *OrderRepository) FindActiveByDocLink(tx *gorm.DB, docEntry, docNum *int, itemCode string) (*entity.ProductionOrder, error) {
	q := tx.Model(&entity.ProductionOrder{}).
		Where("item_code = ? AND status <> ?", itemCode, entity.OrderStatusCancelled)
	switch {
	case docEntry != nil:
		q = q.Where("sap_doc_entry = ?", *docEntry)
	case docNum != nil:
		q = q.Where("sap_doc_num = ?", *docNum)
	default:
		return nil, nil
	}

	var order entity.ProductionOrder
	err := q.First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) List(ctx context.Context, status string, limit, offset int) ([]entity.ProductionOrder, int64, error) {
	q := r.db.WithContext(ctx).Model(&entity.ProductionOrder{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []entity.ProductionOrder
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&orders).Error
	return orders, total, err
}

// CountUnits returns the number of units already created for an order.
func (r *OrderRepository) CountUnits(tx *gorm.DB, orderID string) (int64, error) {
	var count int64
	err := tx.Model(&entity.ProductionUnit{}).Where("order_id = ?", orderID).Count(&count).Error
	return count, err
}

// FindUnitBySerial resolves a unit by its serial number.
func (r *OrderRepository) FindUnitBySerial(ctx context.Context, serialNo string) (*entity.ProductionUnit, error) {
	var unit entity.ProductionUnit
	err := r.db.WithContext(ctx).
		Preload("Order").
		First(&unit, "serial_no = ?", serialNo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

// UpdateStatus moves an order to the given status.
func (r *OrderRepository) UpdateStatus(tx *gorm.DB, orderID, status string) error {
	res := tx.Model(&entity.ProductionOrder{}).Where("id = ?", orderID).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("update order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
