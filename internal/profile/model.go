package profile

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SocialLinks stores per-platform profile links as a JSON text column.
type SocialLinks map[string]string

// Value serializes the links for storage. Empty maps persist as NULL.
func (l SocialLinks) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

// Scan restores the links from their stored representation.
func (l *SocialLinks) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch typed := value.(type) {
	case []byte:
		return json.Unmarshal(typed, l)
	case string:
		return json.Unmarshal([]byte(typed), l)
	default:
		return fmt.Errorf("profile: unsupported social links column type %T", value)
	}
}

// Profile is the user-facing account record, keyed by the internal account id
// minted by the identity service. The username carries a unique index; the
// index, not a pre-check read, is what guarantees global handle uniqueness.
type Profile struct {
	ID                string      `gorm:"column:id;primaryKey;size:36;not null"`
	Username          string      `gorm:"column:username;size:30;not null;uniqueIndex:idx_profiles_username"`
	DisplayName       string      `gorm:"column:display_name;size:50"`
	Bio               string      `gorm:"column:bio;size:160"`
	Location          string      `gorm:"column:location;size:100"`
	AvatarURL         string      `gorm:"column:avatar_url;size:512"`
	LinkedWallet      string      `gorm:"column:linked_wallet;size:100"`
	SocialLinks       SocialLinks `gorm:"column:social_links;type:text"`
	CreatedAt         time.Time   `gorm:"column:created_at"`
	UpdatedAt         time.Time   `gorm:"column:updated_at"`
	UsernameChangedAt *time.Time  `gorm:"column:username_changed_at"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return "profiles"
}

// Update carries a partial set of mutable profile fields. Nil pointers leave
// the stored value untouched; a nil SocialLinks map does the same.
type Update struct {
	Username     *string
	DisplayName  *string
	Bio          *string
	Location     *string
	AvatarURL    *string
	LinkedWallet *string
	SocialLinks  SocialLinks
}

// Empty reports whether the update carries no fields at all.
func (u Update) Empty() bool {
	return u.Username == nil &&
		u.DisplayName == nil &&
		u.Bio == nil &&
		u.Location == nil &&
		u.AvatarURL == nil &&
		u.LinkedWallet == nil &&
		u.SocialLinks == nil
}

var (
	// ErrProfileNotFound signals that no profile row exists yet for the
	// account. Callers use it to branch into onboarding; it is a normal
	// outcome, not a storage failure.
	ErrProfileNotFound = errors.New("profile: not found")
	// ErrProfileExists signals a repeated onboarding attempt for an account
	// that already completed profile creation.
	ErrProfileExists = errors.New("profile: already exists")
	// ErrUsernameTaken signals that the requested handle is held by another
	// account. User-correctable.
	ErrUsernameTaken = errors.New("profile: username already taken")
)
