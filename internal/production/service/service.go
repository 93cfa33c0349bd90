package service

import (
	"github.com/Gucbir/gucbirnest/internal/config"
	"github.com/Gucbir/gucbirnest/internal/erp"
	"github.com/Gucbir/gucbirnest/internal/production/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services bundles all production services.
type Services struct {
	Serial      *SerialService
	BOM         *BOMService
	Order       *OrderService
	Stage       *StageService
	Material    *MaterialService
	Procurement *ProcurementService
}

func NewServices(db *gorm.DB, repos *repository.Repositories, erpClient *erp.Client, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *Services {
	serialSvc := NewSerialService(repos.Setting)
	bomSvc := NewBOMService(erpClient, rdb, cfg.BOM.CacheTTL, logger)

	return &Services{
		Serial:      serialSvc,
		BOM:         bomSvc,
		Order:       NewOrderService(db, repos, serialSvc, bomSvc, erpClient, logger),
		Stage:       NewStageService(db, repos, erpClient, logger),
		Material:    NewMaterialService(bomSvc, repos, erpClient, logger),
		Procurement: NewProcurementService(db, repos, logger),
	}
}
