package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repositories bundles all production repositories.
type Repositories struct {
	Order       *OrderRepository
	Operation   *OperationRepository
	Setting     *SettingRepository
	Stock       *StockRepository
	Procurement *ProcurementRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Order:       NewOrderRepository(db),
		Operation:   NewOperationRepository(db),
		Setting:     NewSettingRepository(db),
		Stock:       NewStockRepository(db),
		Procurement: NewProcurementRepository(db),
	}
}
