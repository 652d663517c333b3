package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingResolver = errors.New("identity resolver is required")
	errMissingBlobs    = errors.New("blob store is required")
	errEmptyAvatar     = errors.New("avatar payload is empty")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew   = "profile.service.new"
	opGetProfile   = "profile.get"
	opCreate       = "profile.create"
	opUpdate       = "profile.update"
	opUploadAvatar = "profile.upload_avatar"
)

const maxAvatarBytes = 5 << 20

var allowedAvatarExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
	"webp": {},
}

// ErrUnsupportedAvatarType signals a file extension outside the image allowlist.
var ErrUnsupportedAvatarType = errors.New("profile: unsupported avatar file type")

// ErrAvatarTooLarge signals an avatar payload above the size cap.
var ErrAvatarTooLarge = errors.New("profile: avatar file too large")

// ServiceError wraps infrastructure failures with an operation code so logs
// and callers can tell which step of which operation broke.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Resolver translates an auth-provider subject into the internal account id.
type Resolver interface {
	ResolveOrCreate(ctx context.Context, externalID string) (string, error)
}

// BlobStore persists avatar files and yields publicly resolvable URLs.
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, overwrite bool) error
	PublicURL(path string) string
}

// ServiceConfig describes the dependencies of the profile service.
type ServiceConfig struct {
	Database *gorm.DB
	Resolver Resolver
	Blobs    BlobStore
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages the profile lifecycle: fetch, onboarding creation, partial
// updates, and avatar storage. Handle uniqueness rests on the username unique
// index; a duplicate-key conflict from the store is the single source of
// truth for ErrUsernameTaken.
type Service struct {
	db       *gorm.DB
	resolver Resolver
	blobs    BlobStore
	clock    func() time.Time
	logger   *zap.Logger
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Resolver == nil {
		return nil, newServiceError(opServiceNew, "missing_resolver", errMissingResolver)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:       cfg.Database,
		resolver: cfg.Resolver,
		blobs:    cfg.Blobs,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Get returns the profile for the account behind the provided external
// subject. ErrProfileNotFound marks a first-time user who has not completed
// onboarding yet.
func (s *Service) Get(ctx context.Context, externalID string) (Profile, error) {
	internalID, err := s.resolver.ResolveOrCreate(ctx, externalID)
	if err != nil {
		return Profile{}, newServiceError(opGetProfile, "resolve_failed", err)
	}

	var record Profile
	err = s.db.WithContext(ctx).Where("id = ?", internalID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		s.logError(opGetProfile, "query_failed", err, zap.String("internal_id", internalID))
		return Profile{}, newServiceError(opGetProfile, "query_failed", err)
	}

	return record, nil
}

// Create writes the onboarding profile row for the account behind the
// external subject. It fails with ErrProfileExists when onboarding already
// completed and ErrUsernameTaken when the handle's unique index rejects the
// insert.
func (s *Service) Create(ctx context.Context, externalID, username string) (Profile, error) {
	if fieldError := ValidateUsername(username); fieldError != nil {
		return Profile{}, fieldError
	}

	internalID, err := s.resolver.ResolveOrCreate(ctx, externalID)
	if err != nil {
		return Profile{}, newServiceError(opCreate, "resolve_failed", err)
	}

	var existing Profile
	err = s.db.WithContext(ctx).Where("id = ?", internalID).First(&existing).Error
	if err == nil {
		return Profile{}, ErrProfileExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opCreate, "existence_check_failed", err, zap.String("internal_id", internalID))
		return Profile{}, newServiceError(opCreate, "existence_check_failed", err)
	}

	now := s.clock().UTC()
	record := Profile{
		ID:        internalID,
		Username:  username,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Profile{}, ErrUsernameTaken
		}
		s.logError(opCreate, "insert_failed", err, zap.String("internal_id", internalID))
		return Profile{}, newServiceError(opCreate, "insert_failed", err)
	}

	s.logger.Info("profile created",
		zap.String("internal_id", internalID),
		zap.String("username", username))
	return record, nil
}

// Update applies the provided partial field set to the account's profile.
// Fields absent from the update are left untouched; a username change stamps
// username_changed_at alongside updated_at. The full updated profile is
// returned.
func (s *Service) Update(ctx context.Context, externalID string, update Update) (Profile, error) {
	if fieldErrors := validateUpdate(update); len(fieldErrors) > 0 {
		return Profile{}, fieldErrors[0]
	}

	internalID, err := s.resolver.ResolveOrCreate(ctx, externalID)
	if err != nil {
		return Profile{}, newServiceError(opUpdate, "resolve_failed", err)
	}

	var current Profile
	err = s.db.WithContext(ctx).Where("id = ?", internalID).First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		s.logError(opUpdate, "query_failed", err, zap.String("internal_id", internalID))
		return Profile{}, newServiceError(opUpdate, "query_failed", err)
	}

	now := s.clock().UTC()
	changes := map[string]interface{}{}
	if update.Username != nil && *update.Username != current.Username {
		changes["username"] = *update.Username
		changes["username_changed_at"] = now
	}
	if update.DisplayName != nil {
		changes["display_name"] = *update.DisplayName
	}
	if update.Bio != nil {
		changes["bio"] = *update.Bio
	}
	if update.Location != nil {
		changes["location"] = *update.Location
	}
	if update.AvatarURL != nil {
		changes["avatar_url"] = *update.AvatarURL
	}
	if update.LinkedWallet != nil {
		changes["linked_wallet"] = *update.LinkedWallet
	}
	if update.SocialLinks != nil {
		changes["social_links"] = update.SocialLinks
	}

	if len(changes) == 0 {
		return current, nil
	}
	changes["updated_at"] = now

	err = s.db.WithContext(ctx).
		Model(&Profile{}).
		Where("id = ?", internalID).
		Updates(changes).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Profile{}, ErrUsernameTaken
		}
		s.logError(opUpdate, "update_failed", err, zap.String("internal_id", internalID))
		return Profile{}, newServiceError(opUpdate, "update_failed", err)
	}

	var updated Profile
	if err := s.db.WithContext(ctx).Where("id = ?", internalID).First(&updated).Error; err != nil {
		s.logError(opUpdate, "reread_failed", err, zap.String("internal_id", internalID))
		return Profile{}, newServiceError(opUpdate, "reread_failed", err)
	}

	return updated, nil
}

// UploadAvatar stores the avatar bytes under the account's media path,
// overwriting any earlier file, and returns the public URL. The profile row
// is not touched; callers follow up with Update carrying the returned URL.
func (s *Service) UploadAvatar(ctx context.Context, externalID string, data []byte, extensionHint string) (string, error) {
	if s.blobs == nil {
		return "", newServiceError(opUploadAvatar, "missing_blob_store", errMissingBlobs)
	}
	if len(data) == 0 {
		return "", newServiceError(opUploadAvatar, "empty_payload", errEmptyAvatar)
	}
	if len(data) > maxAvatarBytes {
		return "", ErrAvatarTooLarge
	}

	extension := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(extensionHint), "."))
	if _, ok := allowedAvatarExtensions[extension]; !ok {
		return "", ErrUnsupportedAvatarType
	}

	internalID, err := s.resolver.ResolveOrCreate(ctx, externalID)
	if err != nil {
		return "", newServiceError(opUploadAvatar, "resolve_failed", err)
	}

	path := fmt.Sprintf("profile_pictures/%s/avatar.%s", internalID, extension)
	if err := s.blobs.Upload(ctx, path, data, true); err != nil {
		s.logError(opUploadAvatar, "upload_failed", err, zap.String("internal_id", internalID))
		return "", newServiceError(opUploadAvatar, "upload_failed", err)
	}

	return s.blobs.PublicURL(path), nil
}

func validateUpdate(update Update) []*FieldError {
	var fieldErrors []*FieldError
	if update.Username != nil {
		if fieldError := ValidateUsername(*update.Username); fieldError != nil {
			fieldErrors = append(fieldErrors, fieldError)
		}
	}
	if update.DisplayName != nil {
		if fieldError := ValidateDisplayName(*update.DisplayName); fieldError != nil {
			fieldErrors = append(fieldErrors, fieldError)
		}
	}
	if update.Bio != nil {
		if fieldError := ValidateBio(*update.Bio); fieldError != nil {
			fieldErrors = append(fieldErrors, fieldError)
		}
	}
	if update.Location != nil {
		if fieldError := ValidateLocation(*update.Location); fieldError != nil {
			fieldErrors = append(fieldErrors, fieldError)
		}
	}
	if update.LinkedWallet != nil {
		if fieldError := ValidateLinkedWallet(*update.LinkedWallet); fieldError != nil {
			fieldErrors = append(fieldErrors, fieldError)
		}
	}
	return fieldErrors
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("profile service error", attrs...)
}
