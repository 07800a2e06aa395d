package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

var (
	ErrDuplicateName      = errors.New("participant name already taken")
	ErrNotFound           = errors.New("participant not found")
	ErrUnknownSender      = errors.New("sender is not a participant")
	ErrUnknownRecipient   = errors.New("recipient is not a participant")
	ErrStorageTimeout     = errors.New("storage timed out")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed input, field by field.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(lo.Map(e.Fields, func(f FieldError, _ int) string {
		return fmt.Sprintf("%s %s", f.Field, f.Message)
	}), ", ")
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
