package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error kinds surfaced by the services. Callers match them with errors.Is;
// the underlying cause stays in the chain.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("note not found")
	ErrEmbeddingFailed = errors.New("embedding failed")
	ErrRetrievalFailed = errors.New("retrieval failed")
	ErrStreamFailed    = errors.New("stream failed")
	ErrInternal        = errors.New("internal error")
)

// wrap joins a kind with its cause so both match errors.Is.
func wrap(kind error, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

// ValidationError reports which input fields were rejected.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, rule := range e.Fields {
		parts = append(parts, field+" "+rule)
	}
	sort.Strings(parts)
	return "invalid input: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError converts validator failures into a ValidationError.
// Errors of any other type are wrapped as plain invalid input.
func NewValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return wrap(ErrInvalidInput, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		// Struct field names are reported the way they appear in JSON.
		fields[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return &ValidationError{Fields: fields}
}

func invalidField(field, rule string) error {
	return &ValidationError{Fields: map[string]string{field: rule}}
}
