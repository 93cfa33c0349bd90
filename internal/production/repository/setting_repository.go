package repository

import (
	"context"
	"errors"

	"github.com/Gucbir/gucbirnest/internal/production/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

func (r *SettingRepository) FindByName(ctx context.Context, name string) (*entity.Setting, error) {
	var setting entity.Setting
	err := r.db.WithContext(ctx).First(&setting, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// LockByName reads a setting row under FOR UPDATE inside the caller's
// transaction. Serial allocation depends on this lock.
func (r *SettingRepository) LockByName(tx *gorm.DB, name string) (*entity.Setting, error) {
	var setting entity.Setting
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&setting, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// UpdateSettings writes a setting document back within the transaction.
func (r *SettingRepository) UpdateSettings(tx *gorm.DB, id string, settings entity.JSONB) error {
	return tx.Model(&entity.Setting{}).Where("id = ?", id).Update("settings", settings).Error
}

// Upsert creates or replaces a named setting document.
func (r *SettingRepository) Upsert(ctx context.Context, name string, settings entity.JSONB) (*entity.Setting, error) {
	setting := entity.Setting{
		ID:       uuid.New().String(),
		Name:     name,
		Settings: settings,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"settings", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return nil, err
	}
	return r.FindByName(ctx, name)
}
