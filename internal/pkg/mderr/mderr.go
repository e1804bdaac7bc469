// Package mderr defines the structured error carried by every core
// operation of the catalog. Handlers map Status/Code to the transport
// layer; some errors additionally carry the record the caller should be
// redirected to.
package mderr

import (
	"errors"
	"fmt"
)

// Code is the machine readable reason of a rejection.
type Code string

const (
	CodeUnsupportedModelVersion   Code = "unsupported_model_version"
	CodeSchemaValidationFailed    Code = "schema_validation_failed"
	CodeUnsupportedContainerType  Code = "unsupported_container_format"
	CodeNotImplementedFormat      Code = "format_not_implemented"
	CodePermissionDenied          Code = "permission_denied"
	CodeRecordLocked              Code = "record_locked"
	CodeMissingRequiredHash       Code = "missing_required_hash"
	CodeStaticHashConflict        Code = "static_hash_conflict"
	CodeStaleUpdate               Code = "stale_update"
	CodeSuccessorConflict         Code = "successor_conflict"
	CodePredecessorConflict       Code = "predecessor_conflict"
	CodeRecordReplaced            Code = "record_replaced"
	CodeRevalidationRejected      Code = "revalidation_rejected"
	CodeRecordNotFound            Code = "record_not_found"
	CodeRecordInvalidated         Code = "record_invalidated"
	CodeUnknown                   Code = "unknown_error"
	CodeUnsupportedSchemaProperty Code = "unsupported_schema_property"
)

// Error is the single structured error kind of the core. It propagates
// unmodified until the request handling boundary.
type Error struct {
	Status  int
	Code    Code
	Message string

	// Dataset optionally references an existing record the caller can act
	// on, e.g. the conflicting static dataset or the current successor.
	Dataset any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Error without payload.
func New(status int, code Code, msg string) *Error {
	return &Error{Status: status, Code: code, Message: msg}
}

// Newf builds an Error with a formatted message.
func Newf(status int, code Code, format string, args ...any) *Error {
	return &Error{Status: status, Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDataset attaches a record payload and returns the same error.
func (e *Error) WithDataset(ds any) *Error {
	e.Dataset = ds
	return e
}

// As unwraps err into an *Error if it is one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Classify returns err unchanged when it already is a structured Error and
// wraps anything else into the defensive unknown fallback. The diagnostic
// text is intended for administrators, not end users.
func Classify(err error) *Error {
	if e, ok := As(err); ok {
		return e
	}
	return Newf(500, CodeUnknown,
		"Unknown error! Please report to your administrator providing these information:\n\n%v", err)
}
