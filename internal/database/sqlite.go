package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/pulsemarkets/pulse/backend/internal/identity"
	"github.com/pulsemarkets/pulse/backend/internal/profile"
	"github.com/pulsemarkets/pulse/backend/internal/sessions"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
// Error translation is enabled so unique-index violations surface as
// gorm.ErrDuplicatedKey, which the identity and profile services rely on for
// their conflict handling.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&identity.Mapping{}, &profile.Profile{}, &sessions.LoginRecord{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
