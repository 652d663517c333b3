package profile

import (
	"fmt"
	"strings"
)

// Field names shared by validators, onboarding rules, and the HTTP layer.
const (
	FieldUsername     = "username"
	FieldDisplayName  = "display_name"
	FieldBio          = "bio"
	FieldLocation     = "location"
	FieldLinkedWallet = "linked_wallet"
)

const (
	minUsernameLength     = 3
	maxUsernameLength     = 30
	maxDisplayNameLength  = 50
	maxBioLength          = 160
	maxLocationLength     = 100
	maxLinkedWalletLength = 100
)

// FieldError reports a single invalid field with a message suitable for
// surfacing next to the input that produced it.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateUsername checks the handle rules: required, 3-30 characters,
// ASCII letters, digits, and underscores only.
func ValidateUsername(value string) *FieldError {
	if value == "" {
		return &FieldError{Field: FieldUsername, Message: "Username is required"}
	}
	if len(value) < minUsernameLength {
		return &FieldError{Field: FieldUsername, Message: fmt.Sprintf("Username must be at least %d characters", minUsernameLength)}
	}
	if len(value) > maxUsernameLength {
		return &FieldError{Field: FieldUsername, Message: fmt.Sprintf("Username must be at most %d characters", maxUsernameLength)}
	}
	for _, r := range value {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			continue
		}
		return &FieldError{Field: FieldUsername, Message: "Username can only contain letters, numbers, and underscores"}
	}
	return nil
}

// ValidateDisplayName checks the optional display name length.
func ValidateDisplayName(value string) *FieldError {
	if len(value) > maxDisplayNameLength {
		return &FieldError{Field: FieldDisplayName, Message: fmt.Sprintf("Display name must be at most %d characters", maxDisplayNameLength)}
	}
	return nil
}

// ValidateBio checks the optional bio length.
func ValidateBio(value string) *FieldError {
	if len(value) > maxBioLength {
		return &FieldError{Field: FieldBio, Message: fmt.Sprintf("Bio must be at most %d characters", maxBioLength)}
	}
	return nil
}

// ValidateLocation checks the optional location length.
func ValidateLocation(value string) *FieldError {
	if len(value) > maxLocationLength {
		return &FieldError{Field: FieldLocation, Message: fmt.Sprintf("Location must be at most %d characters", maxLocationLength)}
	}
	return nil
}

// ValidateLinkedWallet checks the self-reported wallet address length. The
// value is a display attribute only; no signature is verified here.
func ValidateLinkedWallet(value string) *FieldError {
	if len(value) > maxLinkedWalletLength {
		return &FieldError{Field: FieldLinkedWallet, Message: fmt.Sprintf("Wallet address must be at most %d characters", maxLinkedWalletLength)}
	}
	return nil
}

// OnboardingRules decides which fields a new user must supply beyond the
// handle. The product default requires only the username.
type OnboardingRules struct {
	RequiredFields []string
}

// DefaultOnboardingRules returns the username-only requirement set.
func DefaultOnboardingRules() OnboardingRules {
	return OnboardingRules{RequiredFields: []string{FieldUsername}}
}

// ValidateOnboarding checks an onboarding submission against the rule set.
// The fields map carries the submitted values keyed by field name; missing
// keys count as empty. All collected errors are returned so the form can
// highlight every invalid input at once.
func (r OnboardingRules) ValidateOnboarding(fields map[string]string) []*FieldError {
	var fieldErrors []*FieldError

	required := make(map[string]bool, len(r.RequiredFields))
	for _, name := range r.RequiredFields {
		required[strings.TrimSpace(name)] = true
	}
	// The handle is always mandatory regardless of configuration.
	required[FieldUsername] = true

	for _, name := range []string{FieldUsername, FieldDisplayName, FieldBio, FieldLocation, FieldLinkedWallet} {
		value := fields[name]
		if required[name] && strings.TrimSpace(value) == "" {
			if name == FieldUsername {
				fieldErrors = append(fieldErrors, &FieldError{Field: name, Message: "Username is required"})
			} else {
				fieldErrors = append(fieldErrors, &FieldError{Field: name, Message: "This field is required"})
			}
			continue
		}
		if value == "" {
			continue
		}
		if fieldError := validateField(name, value); fieldError != nil {
			fieldErrors = append(fieldErrors, fieldError)
		}
	}

	return fieldErrors
}

func validateField(name, value string) *FieldError {
	switch name {
	case FieldUsername:
		return ValidateUsername(value)
	case FieldDisplayName:
		return ValidateDisplayName(value)
	case FieldBio:
		return ValidateBio(value)
	case FieldLocation:
		return ValidateLocation(value)
	case FieldLinkedWallet:
		return ValidateLinkedWallet(value)
	default:
		return nil
	}
}
