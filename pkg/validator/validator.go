package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	phonePattern = regexp.MustCompile(`^\d{8}$`)
	ciPattern    = regexp.MustCompile(`(?i)^\d{7,8}(sc|lp|bn|tj|or|ch|cb|pt|pn)$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidatePhone reports whether s is exactly eight ASCII digits.
func ValidatePhone(s string) bool {
	return phonePattern.MatchString(s)
}

// ValidateCI reports whether s is a national id: seven or eight digits
// followed by a department code.
func ValidateCI(s string) bool {
	return ciPattern.MatchString(s)
}

func ValidateEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// Register installs the phone8, ci and email tags on v. Gin's binding engine
// is passed here at router setup so request structs share the same rules.
func Register(v *validator.Validate) error {
	rules := map[string]func(string) bool{
		"phone8": ValidatePhone,
		"ci":     ValidateCI,
		"email":  ValidateEmail,
	}
	for tag, fn := range rules {
		fn := fn
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return fn(fl.Field().String())
		}); err != nil {
			return fmt.Errorf("register %s: %w", tag, err)
		}
	}
	return nil
}

// Message renders the first field error in a form fit for a client.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}

	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "phone8":
		return fmt.Sprintf("%s must be 8 digits", field)
	case "ci":
		return fmt.Sprintf("%s must be 7-8 digits followed by a department code", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
