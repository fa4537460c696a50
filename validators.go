package identity

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/nyaruka/phonenumbers"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PasswordRules is the policy applied to every new password: length
// bounds plus at least one upper, lower, digit, and special character.
func PasswordRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Length(8, 100),
		validation.By(validatePasswordComplexity),
	}
}

// UsernameRules bounds the length and restricts usernames to word
// characters with a non digit lead.
func UsernameRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Length(3, 100),
		validation.Match(usernamePattern).
			Error("must contain only letters, numbers and underscores, and not start with a number"),
	}
}

func validatePasswordComplexity(value any) error {
	password, _ := value.(string)

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	switch {
	case !hasUpper:
		return errors.New("must contain at least one uppercase letter")
	case !hasLower:
		return errors.New("must contain at least one lowercase letter")
	case !hasDigit:
		return errors.New("must contain at least one digit")
	case !hasSpecial:
		return errors.New("must contain at least one special character")
	}

	return nil
}

// ValidatePhoneNumber parses the value as an international phone number.
// Empty values pass, pair with validation.Required when the field is
// mandatory.
func ValidatePhoneNumber(value any) error {
	phone, _ := value.(string)
	if strings.TrimSpace(phone) == "" {
		return nil
	}

	parsed, err := phonenumbers.Parse(phone, "US")
	if err != nil {
		return errors.New("must be a valid phone number")
	}

	if !phonenumbers.IsValidNumber(parsed) {
		return errors.New("must be a valid phone number")
	}

	return nil
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field to message map for API payloads
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verr validation.Errors
	if errors.As(err, &verr) {
		for field, ferr := range verr {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}
