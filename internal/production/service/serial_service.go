package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gucbir/gucbirnest/internal/production/entity"
	"github.com/Gucbir/gucbirnest/internal/production/repository"
	"gorm.io/gorm"
)

// SerialService hands out gapless production serials from a single counter
// row. Allocation always happens inside the caller's transaction so the
// serial and the row that consumes it commit or roll back together.
type SerialService struct {
	settings *repository.SettingRepository
}

func NewSerialService(settings *repository.SettingRepository) *SerialService {
	return &SerialService{settings: settings}
}

// AllocateBatch locks the counter row, validates it, formats count serials
// and advances the counter, all within tx. Concurrent transactions serialize
// on the row lock, which keeps serials contiguous.
func (s *SerialService) AllocateBatch(tx *gorm.DB, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}

	setting, err := s.settings.LockByName(tx, entity.SettingNameProductionSerial)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &ConfigError{Name: entity.SettingNameProductionSerial, Reason: "not configured"}
	}
	if err != nil {
		return nil, fmt.Errorf("lock serial counter: %w", err)
	}

	counter, err := entity.DecodeSerialCounter(setting.Settings)
	if err != nil {
		return nil, &ConfigError{Name: entity.SettingNameProductionSerial, Reason: err.Error()}
	}
	if counter.Prefix == "" {
		return nil, &ConfigError{Name: entity.SettingNameProductionSerial, Reason: "prefix is empty"}
	}
	if counter.Pad < 1 {
		return nil, &ConfigError{Name: entity.SettingNameProductionSerial, Reason: "pad must be at least 1"}
	}
	if counter.Next < 1 {
		return nil, &ConfigError{Name: entity.SettingNameProductionSerial, Reason: "next must be at least 1"}
	}

	serials := make([]string, 0, count)
	for i := 0; i < count; i++ {
		serials = append(serials, counter.Format())
		counter.Next++
	}

	setting.Settings["next"] = counter.Next
	if err := s.settings.UpdateSettings(tx, setting.ID, setting.Settings); err != nil {
		return nil, fmt.Errorf("advance serial counter: %w", err)
	}
	return serials, nil
}

// AllocateNext allocates a single serial within tx.
func (s *SerialService) AllocateNext(tx *gorm.DB) (string, error) {
	serials, err := s.AllocateBatch(tx, 1)
	if err != nil {
		return "", err
	}
	return serials[0], nil
}

// GetCounter reads the current counter document.
func (s *SerialService) GetCounter(ctx context.Context) (entity.SerialCounter, error) {
	setting, err := s.settings.FindByName(ctx, entity.SettingNameProductionSerial)
	if errors.Is(err, repository.ErrNotFound) {
		return entity.SerialCounter{}, &ConfigError{Name: entity.SettingNameProductionSerial, Reason: "not configured"}
	}
	if err != nil {
		return entity.SerialCounter{}, err
	}
	return entity.DecodeSerialCounter(setting.Settings)
}

// UpdateCounter replaces the counter document after validation.
func (s *SerialService) UpdateCounter(ctx context.Context, counter entity.SerialCounter) error {
	if counter.Prefix == "" {
		return validationErr("prefix", "is required")
	}
	if counter.Pad < 1 {
		return validationErr("pad", "must be at least 1")
	}
	if counter.Next < 1 {
		return validationErr("next", "must be at least 1")
	}
	_, err := s.settings.Upsert(ctx, entity.SettingNameProductionSerial, entity.JSONB{
		"prefix": counter.Prefix,
		"next":   counter.Next,
		"pad":    counter.Pad,
	})
	return err
}
