// Package validate decodes JSON request bodies into typed payloads and checks
// them against their `validate` struct tags.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const errorType = "ValidationError"

// ValidationError describes why a payload was rejected. Path lists the JSON
// field names leading to the offending value, outermost first.
type ValidationError struct {
	Message string
	Path    []string
}

func (e *ValidationError) Error() string {
	if len(e.Path) == 0 {
		return e.Message
	}
	return strings.Join(e.Path, ".") + ": " + e.Message
}

// Body is the JSON document sent back to the client.
func (e *ValidationError) Body() map[string]any {
	body := map[string]any{
		"type":    errorType,
		"message": e.Message,
	}
	if e.Path != nil {
		body["path"] = e.Path
	}
	return body
}

// PrependPath adds the name of an enclosing field in front of the path.
func (e *ValidationError) PrependPath(name string) {
	e.Path = append([]string{name}, e.Path...)
}

var structs = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return field.Name
		}
		return name
	})
	return v
}

// JSON decodes raw into a T and validates it. Every failure is a
// *ValidationError.
func JSON[T any](raw []byte) (T, error) {
	var payload T

	if !utf8.Valid(raw) {
		return payload, &ValidationError{Message: "request body is not valid UTF-8"}
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	if err := decoder.Decode(&payload); err != nil {
		return payload, decodeError(err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return payload, &ValidationError{Message: "unexpected data after JSON value", Path: []string{}}
	}

	if err := Struct(payload); err != nil {
		return payload, err
	}
	return payload, nil
}

// Struct validates an already populated value. Non-struct values pass.
func Struct(value any) error {
	kind := reflect.Indirect(reflect.ValueOf(value)).Kind()
	if kind != reflect.Struct {
		return nil
	}

	err := structs.Struct(value)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return &ValidationError{Message: err.Error(), Path: []string{}}
	}

	first := fieldErrors[0]
	return &ValidationError{
		Message: describe(first),
		Path:    fieldPath(first.Namespace()),
	}
}

func decodeError(err error) *ValidationError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		path := []string{}
		if typeErr.Field != "" {
			path = strings.Split(typeErr.Field, ".")
		}
		return &ValidationError{
			Message: "expected " + typeErr.Type.String(),
			Path:    path,
		}
	}
	return &ValidationError{Message: err.Error(), Path: []string{}}
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(namespace string) []string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return parts
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "value is required"
	case "min":
		return fmt.Sprintf("value must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("value must be at most %s", fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("value out of range (%s %s)", fe.Tag(), fe.Param())
	case "oneof":
		return "value must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "len":
		return fmt.Sprintf("value must have length %s", fe.Param())
	default:
		return fmt.Sprintf("failed on the '%s' rule", fe.Tag())
	}
}
