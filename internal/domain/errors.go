package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for callers and for the job error field
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindRateLimited ErrorKind = "rate_limited"
	KindNotFound    ErrorKind = "not_found"
	KindExternal    ErrorKind = "external"
	KindTimeout     ErrorKind = "timeout"
	KindCancelled   ErrorKind = "cancelled"
	KindInternal    ErrorKind = "internal"
)

// ErrorSubkind refines KindExternal failures reported by the extraction tool
type ErrorSubkind string

const (
	SubkindAuthRequired  ErrorSubkind = "auth_required"
	SubkindGeoRestricted ErrorSubkind = "geo_restricted"
	SubkindNetwork       ErrorSubkind = "network"
	SubkindUnsupported   ErrorSubkind = "unsupported_format"
)

// Error is the structured error carried across the orchestration core.
// Subkind is only set for KindExternal.
type Error struct {
	Kind    ErrorKind    `json:"kind"`
	Subkind ErrorSubkind `json:"subkind,omitempty"`
	Message string       `json:"message"`
	Err     error        `json:"-"`
}

func (e *Error) Error() string {
	if e.Subkind != "" {
		return fmt.Sprintf("%s:%s: %s", e.Kind, e.Subkind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a structured error with the given kind
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewExternalError creates a structured extraction-tool error
func NewExternalError(subkind ErrorSubkind, err error) *Error {
	return &Error{Kind: KindExternal, Subkind: subkind, Message: err.Error(), Err: err}
}

// WrapError wraps err with the given kind, preserving the chain
func WrapError(kind ErrorKind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// KindOf extracts the error kind, defaulting unknown errors to KindInternal
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
