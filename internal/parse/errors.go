package parse

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a document could not be parsed.
type ErrorKind string

const (
	KindMissingArgument   ErrorKind = "missing_argument"
	KindMissingDependency ErrorKind = "missing_dependency"
	KindFileNotFound      ErrorKind = "file_not_found"
	KindProcessingFailure ErrorKind = "processing_failure"
)

// UsageMessage is reported when no path is given.
const UsageMessage = "Usage: pdfocr <pdf_file_path>"

// Error is a classified parse failure. Message is what the result document reports.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Factory functions for each kind

func NewMissingArgumentError() *Error {
	return &Error{Kind: KindMissingArgument, Message: UsageMessage}
}

func NewMissingDependencyError(cause error) *Error {
	return &Error{
		Kind:    KindMissingDependency,
		Message: fmt.Sprintf("Missing dependencies: %v", cause),
		Err:     cause,
	}
}

func NewFileNotFoundError(path string, cause error) *Error {
	return &Error{
		Kind:    KindFileNotFound,
		Message: fmt.Sprintf("PDF file not found: %s", path),
		Err:     cause,
	}
}

func NewInvalidDirectoryError(dir string, cause error) *Error {
	return &Error{
		Kind:    KindFileNotFound,
		Message: fmt.Sprintf("Invalid directory: %s", dir),
		Err:     cause,
	}
}

func NewProcessingError(cause error) *Error {
	return &Error{
		Kind:    KindProcessingFailure,
		Message: cause.Error(),
		Err:     cause,
	}
}

// AsError returns err as an *Error, classifying anything else as a processing failure.
func AsError(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return NewProcessingError(err)
}
