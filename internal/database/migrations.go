package database

import (
	"errors"
	"time"

	"github.com/pulsemarkets/pulse/backend/internal/profile"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillProfileUpdatedAt = "2026-08-12_backfill_profile_updated_at"

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
		{name: migrationBackfillProfileUpdatedAt, apply: backfillProfileUpdatedAt},
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

// Early profile rows were written before updated_at tracking landed; give
// them a value so partial updates can rely on the column being set.
func backfillProfileUpdatedAt(db *gorm.DB) error {
	return db.Model(&profile.Profile{}).
		Where("updated_at IS NULL OR updated_at = ?", time.Time{}).
		Update("updated_at", gorm.Expr("created_at")).Error
}
