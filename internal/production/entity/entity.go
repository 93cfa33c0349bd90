package entity

import "gorm.io/gorm"

// AutoMigrate migrates all production tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// orders and units
		&ProductionOrder{},
		&ProductionUnit{},

		// route execution
		&ProductionOperation{},
		&OperationItem{},
		&ProductionOperationUnit{},
		&OperationUnitLog{},
		&AlternativeSelection{},
		&AlternativeLog{},

		// configuration
		&Setting{},

		// item master mirror
		&Item{},
		&ItemWarehouseStock{},

		// procurement
		&MaterialShortageRun{},
		&PurchaseRequest{},
		&PurchaseRequestItem{},
	)
}
