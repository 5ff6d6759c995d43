package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/pneus/backend/internal/tires"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	migrationBackfillStatus     = "2026-03-01_backfill_record_status"
	migrationBackfillJSONArrays = "2026-03-01_backfill_tire_json_arrays"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillStatus, apply: backfillRecordStatus},
		{name: migrationBackfillJSONArrays, apply: backfillTireJSONArrays},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillRecordStatus marks rows imported without a status as in progress.
func backfillRecordStatus(db *gorm.DB) error {
	if err := db.Model(&tires.Month{}).
		Where("status = '' OR status IS NULL").
		Update("status", tires.StatusInProgress).Error; err != nil {
		return err
	}
	return db.Model(&tires.Tire{}).
		Where("status = '' OR status IS NULL").
		Update("status", tires.StatusInProgress).Error
}

func backfillTireJSONArrays(db *gorm.DB) error {
	if err := db.Model(&tires.Tire{}).
		Where("fotos IS NULL").
		Update("fotos", datatypes.JSONSlice[string]{}).Error; err != nil {
		return err
	}
	return db.Model(&tires.Tire{}).
		Where("responsaveis IS NULL").
		Update("responsaveis", datatypes.JSONSlice[string]{}).Error
}
