// Package validation runs struct-tag validation on inbound form payloads and
// reports every failing field at once.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Error lists the messages of every failing field.
type Error struct {
	Fields map[string][]string
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a message for field.
func (e *Error) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Has reports whether field already failed.
func (e *Error) Has(field string) bool {
	return len(e.Fields[field]) > 0
}

// Empty reports whether no field failed.
func (e *Error) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// OrNil returns e when it holds failures, nil otherwise.
func (e *Error) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

// Struct validates v and merges failures into into. Fields that already carry
// a message (for example a type mismatch found while decoding) are skipped.
func Struct(v any, into *Error) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validation: %w", err)
	}
	for _, fe := range fieldErrs {
		name := fe.Field()
		if into.Has(name) {
			continue
		}
		into.Add(name, message(fe))
	}
	return nil
}

func message(fe validator.FieldError) string {
	label := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", label)
	case "url":
		return fmt.Sprintf("The %s field must be a valid URL.", label)
	case "ip":
		return fmt.Sprintf("The %s field must be a valid IP address.", label)
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", label)
	default:
		return fmt.Sprintf("The %s field is invalid.", label)
	}
}
