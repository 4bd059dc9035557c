package core

import "github.com/pkg/errors"

// FieldError is the error of one input field, eg. {"status", "unknown status"}.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is returned for rejected input that validator/v10 does not describe by itself:
// record updates, query parameters, batch dates. The API answers it with 400 and the field map.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// shutdown flags a failure the process cannot recover from, such as records that can no longer be encrypted.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

// IsShutdown reports whether err, possibly wrapped, asks the server to stop.
func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
