// Package errs provides the unified error type used across all of cdse-grab.
//
// Every stage of the pipeline (config, catalogue, resolve, filestore,
// dataset) wraps its native errors into *errs.Error before returning them to
// callers. Callers use the Is* predicates to handle errors without importing
// stage-specific packages.
//
// Usage:
//
//	// In a driver — wrap native errors:
//	return errs.Wrap(errs.ErrKindTransfer, "download interrupted", s3Err)
//
//	// In a caller — check error kind:
//	if errs.IsObjectNotFound(err) {
//	    log.Printf("product file was removed from eodata: %v", err)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing backend-specific codes.
// Each stage maps its native errors (HTTP statuses, S3 error codes, JSON
// decode failures, …) to one of these kinds, giving callers a single
// consistent API.
type ErrKind int

const (
	ErrKindUnknown              ErrKind = iota
	ErrKindConfigNotFound               // configuration file absent
	ErrKindConfigInvalid                // configuration unreadable or missing required keys
	ErrKindCatalogueUnavailable         // catalogue unreachable or non-success HTTP status
	ErrKindCatalogueParse               // catalogue response is not valid STAC JSON
	ErrKindUnresolvableAsset            // asset href matches no known storage pattern
	ErrKindObjectNotFound               // no object at the resolved bucket/key
	ErrKindAccessDenied                 // storage credentials rejected
	ErrKindTransfer                     // transport-level storage failure
	ErrKindUnsupportedMediaType         // no decoder registered for the asset media type
	ErrKindTimeout                      // context deadline / cancellation
	ErrKindInvalidInput                 // bad arguments from the caller
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindConfigNotFound:
		return "config_not_found"
	case ErrKindConfigInvalid:
		return "config_invalid"
	case ErrKindCatalogueUnavailable:
		return "catalogue_unavailable"
	case ErrKindCatalogueParse:
		return "catalogue_parse"
	case ErrKindUnresolvableAsset:
		return "unresolvable_asset"
	case ErrKindObjectNotFound:
		return "object_not_found"
	case ErrKindAccessDenied:
		return "access_denied"
	case ErrKindTransfer:
		return "transfer"
	case ErrKindUnsupportedMediaType:
		return "unsupported_media_type"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all cdse-grab stages.
// Stages produce it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original backend-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsConfigNotFound reports whether err means the configuration file is absent.
func IsConfigNotFound(err error) bool {
	return kindOf(err) == ErrKindConfigNotFound
}

// IsConfigInvalid reports whether err means the configuration file exists but
// could not be parsed or is missing required keys.
func IsConfigInvalid(err error) bool {
	return kindOf(err) == ErrKindConfigInvalid
}

// IsCatalogueUnavailable reports whether err is a connectivity or HTTP-level
// failure talking to the STAC catalogue.
func IsCatalogueUnavailable(err error) bool {
	return kindOf(err) == ErrKindCatalogueUnavailable
}

// IsCatalogueParse reports whether err means the catalogue answered with a
// body that is not valid STAC JSON.
func IsCatalogueParse(err error) bool {
	return kindOf(err) == ErrKindCatalogueParse
}

// IsUnresolvableAsset reports whether err means an asset href matched no
// known storage pattern. This is a data error, not a programming error.
func IsUnresolvableAsset(err error) bool {
	return kindOf(err) == ErrKindUnresolvableAsset
}

// IsObjectNotFound reports whether err means the resolved bucket/key does not
// exist in object storage.
func IsObjectNotFound(err error) bool {
	return kindOf(err) == ErrKindObjectNotFound
}

// IsAccessDenied reports whether err is a credential rejection from object
// storage.
func IsAccessDenied(err error) bool {
	return kindOf(err) == ErrKindAccessDenied
}

// IsTransfer reports whether err is a transport-level object storage failure.
func IsTransfer(err error) bool {
	return kindOf(err) == ErrKindTransfer
}

// IsUnsupportedMediaType reports whether err means no decoder is registered
// for an asset's declared media type.
func IsUnsupportedMediaType(err error) bool {
	return kindOf(err) == ErrKindUnsupportedMediaType
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// kindOf extracts the ErrKind from any error in the chain.
func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
