package types

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError reports every field that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	msgs := make([]string, 0, len(names))
	for _, name := range names {
		msgs = append(msgs, e.Fields[name])
	}
	return strings.Join(msgs, "; ")
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// ValidateSession checks a normalized session before it is written.
// Category is only mandatory once the session is published.
func ValidateSession(s Session) error {
	verr := &ValidationError{}
	collect(verr, validate.Struct(s))

	if s.IsPublished() && s.Category == "" {
		verr.add("category", "category is required to publish")
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// ValidateUser checks a user record before it is created.
func ValidateUser(u User) error {
	verr := &ValidationError{}
	collect(verr, validate.Struct(u))
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// ValidateFilter checks the enumerations of a public listing filter.
func ValidateFilter(f SessionFilter) error {
	verr := &ValidationError{}
	if f.Category != "" && !slices.Contains(Categories, f.Category) {
		verr.add("category", fmt.Sprintf("category must be one of %s", strings.Join(Categories, ", ")))
	}
	if f.Difficulty != "" && !slices.Contains(Difficulties, f.Difficulty) {
		verr.add("difficulty", fmt.Sprintf("difficulty must be one of %s", strings.Join(Difficulties, ", ")))
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func collect(verr *ValidationError, err error) {
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.add("_", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		verr.add(fe.Field(), fieldMessage(fe))
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
