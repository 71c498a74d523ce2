package rag

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates a missing input file. Wrapped with path context
// at the call site; match with errors.Is.
var ErrNotFound = errors.New("file not found")

// ErrKeywordSearchUnavailable marks the keyword-search capability as
// absent. Callers use it to distinguish "no results" from "capability
// not implemented".
var ErrKeywordSearchUnavailable = errors.New("keyword search not implemented")

// UnsupportedFormatError indicates a file extension the loader does not
// handle.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format: %q", e.Ext)
}

// ValidationError indicates a structural input error: count mismatch,
// dimension mismatch, or an out-of-range config value. These propagate
// to the caller and are never swallowed.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Msg
}

// ExternalServiceError indicates a non-success status or transport
// failure from one of the remote services (segmentation, embedding,
// chat completions).
type ExternalServiceError struct {
	Service string
	Status  string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s service: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s service returned status %s", e.Service, e.Status)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// DecodingError indicates that none of the fallback encodings could
// decode an input file.
type DecodingError struct {
	Encodings []string
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("unable to decode file; tried encodings: %s", strings.Join(e.Encodings, ", "))
}
