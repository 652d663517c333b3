// Package sessions records a write-only audit trail of completed logins.
package sessions

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("sessions: database connection required")
	errMissingIDProvider = errors.New("sessions: id provider required")
)

// LoginRecord captures one completed login for auditing.
type LoginRecord struct {
	ID        string    `gorm:"column:id;primaryKey;size:36;not null"`
	UserID    string    `gorm:"column:user_id;size:36;not null;index:idx_session_logs_user"`
	IPAddress string    `gorm:"column:ip_address;size:64"`
	UserAgent string    `gorm:"column:user_agent;size:512"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName exposes the table backing the login audit trail.
func (LoginRecord) TableName() string {
	return "session_logs"
}

// IDProvider mints audit record identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// RecorderConfig describes the dependencies of the login recorder.
type RecorderConfig struct {
	Database   *gorm.DB
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Recorder appends login audit rows. Failures are logged and swallowed so a
// broken audit table never blocks a login.
type Recorder struct {
	db         *gorm.DB
	idProvider IDProvider
	now        func() time.Time
	logger     *zap.Logger
}

// NewRecorder constructs the login recorder.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		db:         cfg.Database,
		idProvider: cfg.IDProvider,
		now:        clock,
		logger:     logger,
	}, nil
}

// RecordLogin appends one audit row for the account.
func (r *Recorder) RecordLogin(ctx context.Context, userID, ipAddress, userAgent string) {
	if userID == "" {
		return
	}

	recordID, err := r.idProvider.NewID()
	if err != nil {
		r.logger.Warn("login audit id generation failed", zap.Error(err))
		return
	}

	record := LoginRecord{
		ID:        recordID,
		UserID:    userID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		CreatedAt: r.now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		r.logger.Warn("login audit write failed",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}
