package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a pipeline error
type ErrorType string

const (
	// ErrorTypeSelectionTooLarge indicates the selected area covers too many tiles
	ErrorTypeSelectionTooLarge ErrorType = "selection_too_large"
	// ErrorTypeSelectionEmpty indicates the selected area covers no tiles
	ErrorTypeSelectionEmpty ErrorType = "selection_empty"
	// ErrorTypeFetch indicates a transport or decode failure of a tile batch
	ErrorTypeFetch ErrorType = "fetch"
	// ErrorTypeClassification indicates a malformed rule table
	ErrorTypeClassification ErrorType = "classification"
	// ErrorTypeExport indicates an export sink failure
	ErrorTypeExport ErrorType = "export"
	// ErrorTypeSuperseded indicates a run finished after a newer run committed
	ErrorTypeSuperseded ErrorType = "superseded"
	// ErrorTypeInvalid indicates invalid input to an operation
	ErrorTypeInvalid ErrorType = "invalid"
	// ErrorTypeInternal is reported for errors that carry no type
	ErrorTypeInternal ErrorType = "internal"
)

// AppError is the base error type returned by pipeline stages
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// SelectionTooLarge reports a selection of count tiles exceeding max
func SelectionTooLarge(count, max int) error {
	return &AppError{
		Type:    ErrorTypeSelectionTooLarge,
		Message: fmt.Sprintf("selection too large (%d tiles), reduce it to at most %d tiles", count, max),
	}
}

// SelectionEmpty reports a selection that covers no tiles
func SelectionEmpty() error {
	return &AppError{
		Type:    ErrorTypeSelectionEmpty,
		Message: "selection covers no tiles",
	}
}

// WrapFetch wraps a transport or decode error
func WrapFetch(message string, err error) error {
	return &AppError{
		Type:    ErrorTypeFetch,
		Message: message,
		Err:     err,
	}
}

// Classificationf creates a classification error with formatting
func Classificationf(format string, args ...interface{}) error {
	return &AppError{
		Type:    ErrorTypeClassification,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapExport wraps a sink error
func WrapExport(message string, err error) error {
	return &AppError{
		Type:    ErrorTypeExport,
		Message: message,
		Err:     err,
	}
}

// Superseded reports that run gen lost to an already committed run
func Superseded(gen, committed uint64) error {
	return &AppError{
		Type:    ErrorTypeSuperseded,
		Message: fmt.Sprintf("run %d superseded by run %d", gen, committed),
	}
}

// Invalidf creates an invalid input error with formatting
func Invalidf(format string, args ...interface{}) error {
	return &AppError{
		Type:    ErrorTypeInvalid,
		Message: fmt.Sprintf(format, args...),
	}
}

// GetType returns the error type of an error
func GetType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// IsType reports whether err carries the given type
func IsType(err error, t ErrorType) bool {
	return err != nil && GetType(err) == t
}
