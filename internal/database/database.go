package database

import (
	"errors"
	"fmt"

	"github.com/irfndi/AetherDEX/apps/staking/internal/config"
	"github.com/irfndi/AetherDEX/apps/staking/internal/models"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "modernc.org/sqlite"
)

// sqliteDriver is the database/sql name registered by modernc.org/sqlite.
const sqliteDriver = "sqlite"

// serializationFailure is the SQLSTATE postgres returns for conflicting
// serializable transactions.
const serializationFailure = "40001"

// Open connects to the configured database and migrates the schema.
func Open(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err = gorm.Open(postgres.New(postgres.Config{
			DriverName: "postgres",
			DSN:        cfg.PostgresDSN(),
		}), gormCfg)
	case config.DriverSQLite:
		db, err = OpenSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens a SQLite database file using the pure Go driver and
// migrates the schema. A single connection serializes writers.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Dialector{DriverName: sqliteDriver, DSN: dsn}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every staking table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsSerializationFailure reports whether err is a postgres serialization
// conflict that is safe to retry.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == serializationFailure
	}
	return false
}
