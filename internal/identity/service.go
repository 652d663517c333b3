package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrInvalidExternalID indicates the provider subject was empty.
	ErrInvalidExternalID = errors.New("identity: invalid external id")

	errMissingDatabase   = errors.New("identity: database connection required")
	errMissingIDProvider = errors.New("identity: id provider required")
)

// ServiceConfig describes the dependencies required for identity resolution.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service translates auth-provider subjects into stable internal account ids,
// creating the mapping on first sight.
type Service struct {
	db         *gorm.DB
	idProvider IDProvider
	now        func() time.Time
	logger     *zap.Logger
	cache      sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		idProvider: idProvider,
		now:        clock,
		logger:     logger,
		cache:      sync.Map{},
	}, nil
}

// ResolveOrCreate returns the internal account id for the provided external
// subject, minting and persisting a new mapping when the subject has not been
// seen before. Repeated calls for the same subject return the same id.
func (s *Service) ResolveOrCreate(ctx context.Context, externalID string) (string, error) {
	subject := normalize(externalID)
	if subject == "" {
		return "", ErrInvalidExternalID
	}

	if cached, ok := s.cache.Load(subject); ok {
		if internalID, ok := cached.(string); ok {
			return internalID, nil
		}
	}

	var mapping Mapping
	err := s.db.WithContext(ctx).
		Where("external_id = ?", subject).
		First(&mapping).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		newID, idErr := s.idProvider.NewID()
		if idErr != nil {
			return "", fmt.Errorf("identity: mint internal id: %w", idErr)
		}
		mapping = Mapping{
			ExternalID: subject,
			InternalID: newID,
			CreatedAt:  s.now().UTC(),
		}
		createErr := s.db.WithContext(ctx).Create(&mapping).Error
		if errors.Is(createErr, gorm.ErrDuplicatedKey) {
			// Lost a concurrent first-login race; the winner's row is
			// authoritative, so re-read it.
			if readErr := s.db.WithContext(ctx).
				Where("external_id = ?", subject).
				First(&mapping).
				Error; readErr != nil {
				return "", fmt.Errorf("identity: reread after conflict: %w", readErr)
			}
			s.logger.Info("identity mapping race resolved",
				zap.String("external_id", subject),
				zap.String("internal_id", mapping.InternalID))
		} else if createErr != nil {
			return "", fmt.Errorf("identity: create mapping: %w", createErr)
		}
	} else if err != nil {
		return "", fmt.Errorf("identity: lookup mapping: %w", err)
	}

	s.cache.Store(subject, mapping.InternalID)
	return mapping.InternalID, nil
}
