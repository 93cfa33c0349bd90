package repository

import (
	"context"
	"errors"

	"github.com/Gucbir/gucbirnest/internal/production/entity"
	"gorm.io/gorm"
)

type ProcurementRepository struct {
	db *gorm.DB
}

func NewProcurementRepository(db *gorm.DB) *ProcurementRepository {
	return &ProcurementRepository{db: db}
}

func (r *ProcurementRepository) CreateRun(ctx context.Context, run *entity.MaterialShortageRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *ProcurementRepository) FindRunByID(tx *gorm.DB, id string) (*entity.MaterialShortageRun, error) {
	var run entity.MaterialShortageRun
	err := tx.First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// FindRequestByRunID returns the purchase request already generated for a
// shortage run, nil if none exists yet.
func (r *ProcurementRepository) FindRequestByRunID(tx *gorm.DB, runID string) (*entity.PurchaseRequest, error) {
	var req entity.PurchaseRequest
	err := tx.First(&req, "material_run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *ProcurementRepository) CreateRequest(tx *gorm.DB, req *entity.PurchaseRequest, items []entity.PurchaseRequestItem) error {
	if err := tx.Create(req).Error; err != nil {
		return err
	}
	return tx.Create(&items).Error
}

func (r *ProcurementRepository) FindRequestByID(ctx context.Context, id string) (*entity.PurchaseRequest, error) {
	var req entity.PurchaseRequest
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *ProcurementRepository) ListRequests(ctx context.Context, limit, offset int) ([]entity.PurchaseRequest, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&entity.PurchaseRequest{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var reqs []entity.PurchaseRequest
	err := r.db.WithContext(ctx).
		Preload("Items").
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&reqs).Error
	return reqs, total, err
}
