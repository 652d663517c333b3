package profile

import (
	"strings"
	"testing"
)

func TestValidateUsernameBoundaries(t *testing.T) {
	testCases := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{name: "empty", username: "", wantErr: true},
		{name: "two characters", username: "ab", wantErr: true},
		{name: "three characters", username: "abc", wantErr: false},
		{name: "thirty characters", username: strings.Repeat("a", 30), wantErr: false},
		{name: "thirty one characters", username: strings.Repeat("a", 31), wantErr: true},
		{name: "space and punctuation", username: "bad name!", wantErr: true},
		{name: "digits and underscore", username: "bad_name2", wantErr: false},
		{name: "hyphen", username: "bad-name", wantErr: true},
		{name: "unicode letters", username: "ユーザー名前", wantErr: true},
		{name: "mixed case", username: "Trader_One", wantErr: false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			fieldError := ValidateUsername(testCase.username)
			if testCase.wantErr && fieldError == nil {
				t.Fatalf("expected %q to be rejected", testCase.username)
			}
			if !testCase.wantErr && fieldError != nil {
				t.Fatalf("expected %q to be accepted, got %v", testCase.username, fieldError)
			}
			if fieldError != nil && fieldError.Field != FieldUsername {
				t.Fatalf("unexpected field %q", fieldError.Field)
			}
		})
	}
}

func TestValidateOptionalFieldLengths(t *testing.T) {
	if fieldError := ValidateDisplayName(strings.Repeat("d", 50)); fieldError != nil {
		t.Fatalf("expected 50-character display name to pass, got %v", fieldError)
	}
	if fieldError := ValidateDisplayName(strings.Repeat("d", 51)); fieldError == nil {
		t.Fatalf("expected 51-character display name to fail")
	}
	if fieldError := ValidateBio(strings.Repeat("b", 160)); fieldError != nil {
		t.Fatalf("expected 160-character bio to pass, got %v", fieldError)
	}
	if fieldError := ValidateBio(strings.Repeat("b", 161)); fieldError == nil {
		t.Fatalf("expected 161-character bio to fail")
	}
	if fieldError := ValidateLocation(strings.Repeat("l", 100)); fieldError != nil {
		t.Fatalf("expected 100-character location to pass, got %v", fieldError)
	}
	if fieldError := ValidateLocation(strings.Repeat("l", 101)); fieldError == nil {
		t.Fatalf("expected 101-character location to fail")
	}
	if fieldError := ValidateLinkedWallet(strings.Repeat("w", 101)); fieldError == nil {
		t.Fatalf("expected 101-character wallet address to fail")
	}
}

func TestOnboardingRulesDefaultRequiresOnlyUsername(t *testing.T) {
	rules := DefaultOnboardingRules()

	fieldErrors := rules.ValidateOnboarding(map[string]string{
		FieldUsername: "trader1",
	})
	if len(fieldErrors) != 0 {
		t.Fatalf("expected username-only submission to pass, got %v", fieldErrors)
	}

	fieldErrors = rules.ValidateOnboarding(map[string]string{})
	if len(fieldErrors) != 1 || fieldErrors[0].Field != FieldUsername {
		t.Fatalf("expected a single username error, got %v", fieldErrors)
	}
}

func TestOnboardingRulesConfiguredRequiredFields(t *testing.T) {
	rules := OnboardingRules{RequiredFields: []string{FieldUsername, FieldDisplayName}}

	fieldErrors := rules.ValidateOnboarding(map[string]string{
		FieldUsername: "trader1",
	})
	if len(fieldErrors) != 1 || fieldErrors[0].Field != FieldDisplayName {
		t.Fatalf("expected display name requirement error, got %v", fieldErrors)
	}

	fieldErrors = rules.ValidateOnboarding(map[string]string{
		FieldUsername:    "trader1",
		FieldDisplayName: "Trader One",
	})
	if len(fieldErrors) != 0 {
		t.Fatalf("expected complete submission to pass, got %v", fieldErrors)
	}
}

func TestOnboardingRulesAlwaysRequireUsername(t *testing.T) {
	rules := OnboardingRules{RequiredFields: []string{FieldDisplayName}}

	fieldErrors := rules.ValidateOnboarding(map[string]string{
		FieldDisplayName: "Trader One",
	})
	if len(fieldErrors) != 1 || fieldErrors[0].Field != FieldUsername {
		t.Fatalf("expected username to stay mandatory, got %v", fieldErrors)
	}
}

func TestOnboardingRulesValidateProvidedOptionalFields(t *testing.T) {
	rules := DefaultOnboardingRules()

	fieldErrors := rules.ValidateOnboarding(map[string]string{
		FieldUsername: "trader1",
		FieldBio:      strings.Repeat("b", 161),
	})
	if len(fieldErrors) != 1 || fieldErrors[0].Field != FieldBio {
		t.Fatalf("expected bio length error, got %v", fieldErrors)
	}
}
