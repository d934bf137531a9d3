package repository

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/config"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB initializes the database connection based on configuration and runs migrations.
// Parameters:
//   - cfg: database configuration including driver and connection settings.
// Returns:
//   - *gorm.DB: initialized database handle.
//   - error: non-nil if connection or migration fails.
func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	var db *gorm.DB
	var err error

	switch cfg.Driver {
	case "postgres":
		db, err = initPostgres(cfg, gormConfig)
	case "sqlite":
		db, err = initSQLite(cfg, gormConfig)
	default:
		log.Printf("[DB] Unknown driver %q, defaulting to SQLite", cfg.Driver)
		db, err = initSQLite(cfg, gormConfig)
	}

	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}

	// Pool settings matter under chunk parallelism: every worker holds a
	// transaction during batch flushes.
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// Migrate creates or updates the upload bookkeeping tables and the ingest
// target table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.UploadJob{},
		&domain.UploadChunk{},
		&domain.RowError{},
		&domain.DedupEntry{},
		&domain.InvoiceLine{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// initPostgres initializes a PostgreSQL database connection
func initPostgres(cfg *config.DatabaseConfig, gormConfig *gorm.Config) (*gorm.DB, error) {
	// PreferSimpleProtocol supports transaction poolers, which disallow
	// implicit prepared statements
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: true,
	}), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return db, nil
}

// initSQLite initializes a SQLite database connection
func initSQLite(cfg *config.DatabaseConfig, gormConfig *gorm.Config) (*gorm.DB, error) {
	if cfg.Path != "" {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}

	// WAL mode for concurrent readers while a writer transaction is open
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA foreign_keys=ON")
	db.Exec("PRAGMA busy_timeout=5000")

	return db, nil
}
