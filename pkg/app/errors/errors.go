// Package errors contains helper functions and types to work with errors
package errors

import (
	"errors"
	"net/http"
)

// Kind classifies a bridge error so callers can distinguish
// "try another protocol" from "retry later" from "system paused".
type Kind int

const (
	// KindInternal The service failed in an unexpected way
	KindInternal Kind = iota
	// KindConfiguration The chain or protocol is not registered, or is disabled
	KindConfiguration
	// KindAuthorization The caller lacks the required capability,
	// e.g. not a trusted adapter remote or not a registered oracle signer
	KindAuthorization
	// KindReplay The nonce was already consumed or the signature already cast
	KindReplay
	// KindValidation The client sent invalid data: zero amount or recipient,
	// malformed payload, chain mismatch
	KindValidation
	// KindConsistency A supply discrepancy beyond tolerance was detected,
	// or the component is paused pending investigation
	KindConsistency
	// KindCapacity The sliding-window rate limit was exceeded
	KindCapacity
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthorization:
		return "authorization"
	case KindReplay:
		return "replay"
	case KindValidation:
		return "validation"
	case KindConsistency:
		return "consistency"
	case KindCapacity:
		return "capacity"
	default:
		return "internal"
	}
}

// Error represents the service-specific error type that
// is used all over the bridge components.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error method to comply with error interface
func (err Error) Error() string {
	if err.Err != nil {
		return err.Message + ": " + err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err Error) Unwrap() error {
	return err.Err
}

// Is implements the custom condition to check an error is equal to a bridge error
func (err Error) Is(target error) bool {
	return err.Message == target.Error()
}

// Is checks that provided error is an Error with the desired Kind
func Is(err error, kind Kind) bool {
	var bridgeErr *Error
	if errors.As(err, &bridgeErr) && bridgeErr.Kind == kind {
		return true
	}
	return false
}

// Configuration returns an error for an unregistered or disabled chain/protocol
func Configuration(err error, message string) error {
	return &Error{Kind: KindConfiguration, Message: message, Err: err}
}

// Authorization returns an error for a caller that lacks the required capability
func Authorization(err error, message string) error {
	return &Error{Kind: KindAuthorization, Message: message, Err: err}
}

// Replay returns an error for a reused nonce or a duplicate signature
func Replay(err error, message string) error {
	return &Error{Kind: KindReplay, Message: message, Err: err}
}

// Validation returns an error for invalid request data
func Validation(err error, message string) error {
	return &Error{Kind: KindValidation, Message: message, Err: err}
}

// Consistency returns an error for supply mismatch or paused components
func Consistency(err error, message string) error {
	return &Error{Kind: KindConsistency, Message: message, Err: err}
}

// Capacity returns an error for an exceeded rate limit
func Capacity(err error, message string) error {
	return &Error{Kind: KindCapacity, Message: message, Err: err}
}

// Internal returns a general service error
// the message sent to the user is "Internal Server Error"
// the error passed is logged in the logger
func Internal(err error) error {
	if err == nil {
		err = errors.New("internal server error")
	}
	return &Error{Kind: KindInternal, Message: "Internal Server Error", Err: err}
}

// StatusCode returns the HTTP status code for the error kind
func (err Error) StatusCode() int {
	switch err.Kind {
	case KindConfiguration:
		return http.StatusUnprocessableEntity
	case KindAuthorization:
		return http.StatusForbidden
	case KindReplay:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindConsistency:
		return http.StatusServiceUnavailable
	case KindCapacity:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
