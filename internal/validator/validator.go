package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError describes one failed field rule
type ValidationError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationErrors is returned when a struct fails validation
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// Validator wraps go-playground/validator with the service's custom rules
type Validator struct {
	validate *validator.Validate
}

var (
	questionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,99}$`)
)

// New creates a validator with every custom rule registered
func New() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	v := &Validator{validate: validate}
	v.registerRules()
	return v
}

// Validate validates a struct; the returned error is ValidationErrors
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	return ToValidationErrors(err)
}

func (v *Validator) registerRules() {
	// Question node ids: short, url-safe, start alphanumeric
	v.validate.RegisterValidation("question_id", func(fl validator.FieldLevel) bool {
		return questionIDPattern.MatchString(fl.Field().String())
	})

	// Identity-provider user ids
	v.validate.RegisterValidation("student_id", func(fl validator.FieldLevel) bool {
		id := fl.Field().String()
		return strings.TrimSpace(id) == id && len(id) >= 1 && len(id) <= 255
	})

	// Titles of tests and groups (1-200 characters after trimming)
	v.validate.RegisterValidation("title", func(fl validator.FieldLevel) bool {
		title := strings.TrimSpace(fl.Field().String())
		return len(title) >= 1 && len(title) <= 200
	})
}

// ToValidationErrors converts validator errors into ValidationErrors
func ToValidationErrors(err error) ValidationErrors {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Field: "", Rule: "invalid", Message: err.Error()}}
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: message(fe),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "question_id":
		return fmt.Sprintf("%s is not a valid question id", fe.Field())
	case "student_id":
		return fmt.Sprintf("%s is not a valid student id", fe.Field())
	case "title":
		return fmt.Sprintf("%s must be 1-200 characters", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
