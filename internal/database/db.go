package database

import (
	"fmt"
	"time"

	"buildtrack-backend/internal/config"
	"buildtrack-backend/internal/logger"
	"buildtrack-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Models lists every table owned by the service, in dependency order.
func Models() []any {
	return []any{
		&models.Organization{},
		&models.User{},
		&models.Site{},
		&models.Vendor{},
		&models.MaterialMaster{},
		&models.MaterialSiteAllocation{},
		&models.MaterialReceipt{},
		&models.Purchase{},
		&models.PurchaseLine{},
		&models.AuditLog{},
	}
}

func Connect(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	gormLog := logger.NewGormLogger(log,
		logger.MapGormLogLevel(cfg.DBLogLevel),
		time.Duration(cfg.DBSlowQueryMs)*time.Millisecond,
	)

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := Migrate(db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	log.Info("database migrated", zap.Int("tables", len(Models())))
	return nil
}
