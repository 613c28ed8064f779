package database

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xamero/smartdocs/config"
	"github.com/xamero/smartdocs/internal/metrics"
	"github.com/xamero/smartdocs/internal/models"
)

// Open connects the write database and, when configured, a read replica.
// Without a read-only DSN both handles point at the same pool.
func Open(cfg config.DatabaseConfig, collector *metrics.Metrics) (*gorm.DB, *gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}
	if err := configurePool(db, cfg); err != nil {
		return nil, nil, err
	}
	RegisterMetricsHooks(db, collector)

	readOnlyDB := db
	if cfg.ReadOnlyDSN != "" {
		readOnlyDB, err = gorm.Open(postgres.Open(cfg.ReadOnlyDSN), gormCfg)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
		}
		if err := configurePool(readOnlyDB, cfg); err != nil {
			return nil, nil, err
		}
		RegisterMetricsHooks(readOnlyDB, collector)
	}

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, nil, err
		}
	}

	return db, readOnlyDB, nil
}

func configurePool(db *gorm.DB, cfg config.DatabaseConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get underlying DB connection")
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return nil
}

// Migrate applies the schema
func Migrate(db *gorm.DB) error {
	log.Info().Msg("Running database migrations")
	return models.SetupModels(db)
}

// Close closes the connection pools behind both handles
func Close(db, readOnlyDB *gorm.DB) {
	closePool(db)
	if readOnlyDB != nil && readOnlyDB != db {
		closePool(readOnlyDB)
	}
}

func closePool(handle *gorm.DB) {
	if handle == nil {
		return
	}
	sqlDB, err := handle.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database pool")
	}
}

// Ping checks the database is reachable
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get underlying DB connection")
	}
	return errors.Wrap(sqlDB.Ping(), "database ping failed")
}
