package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/pneus/backend/internal/tires"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	// DriverSQLite selects the embedded pure-Go SQLite driver.
	DriverSQLite = "sqlite"
	// DriverPostgres selects the PostgreSQL driver.
	DriverPostgres = "postgres"
)

var (
	// ErrUnsupportedDriver indicates an unknown database.driver value.
	ErrUnsupportedDriver = errors.New("database: unsupported driver")
	errMissingPath       = errors.New("database: sqlite path is required")
	errMissingDSN        = errors.New("database: postgres dsn is required")
)

// Config selects the backing database.
type Config struct {
	Driver string
	Path   string
	DSN    string
}

// Open establishes the connection and brings the schema up to date.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}
	dialector, err := dialectorFor(driver, cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		enableWriteAheadLog(db, logger)
	}

	if err := db.AutoMigrate(&users.User{}, &tires.Month{}, &tires.Tire{}, &tires.Counter{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", driver), zap.String("path", cfg.Path))
	return db, nil
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

func dialectorFor(driver string, cfg Config) (gorm.Dialector, error) {
	switch driver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, errMissingPath
		}
		return sqlite.Open(cfg.Path), nil
	case DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, errMissingDSN
		}
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// enableWriteAheadLog switches SQLite to WAL; an unsupported or in-memory database keeps
// its journal mode and the failure is only logged.
func enableWriteAheadLog(db *gorm.DB, logger *zap.Logger) {
	var mode string
	if err := db.Raw("PRAGMA journal_mode=WAL").Scan(&mode).Error; err != nil {
		logger.Warn("sqlite journal mode unchanged", zap.Error(err))
		return
	}
	if !strings.EqualFold(mode, "wal") {
		logger.Debug("sqlite journal mode", zap.String("mode", mode))
	}
}
