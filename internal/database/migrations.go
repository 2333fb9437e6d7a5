package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/pagepin/internal/mirror"
)

const migrationBackfillRecordStatus = "2026-07-18_backfill_record_status"

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
		{name: migrationBackfillRecordStatus, apply: backfillRecordStatus},
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

// backfillRecordStatus repairs rows written before the status column gained
// a value: anything with a destination message counts as synced, the rest as
// skipped.
func backfillRecordStatus(db *gorm.DB) error {
	if err := db.Model(&mirror.Record{}).
		Where("status = '' AND message_id <> 0").
		Update("status", mirror.StatusSynced).Error; err != nil {
		return err
	}
	return db.Model(&mirror.Record{}).
		Where("status = ''").
		Update("status", mirror.StatusSkipped).Error
}
