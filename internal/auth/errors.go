package auth

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes the failures the authentication core can produce.
// Synchronous calls return an *Error wrapping one of these; asynchronous
// failures never flow back through a return value, only through a status
// transition (see Status).
type ErrorKind int

const (
	// ErrKindInvalidArgument covers a null handle, a missing required
	// field, or a CBS handle missing for a credential that requires one.
	ErrKindInvalidArgument ErrorKind = iota
	// ErrKindInvalidConfig covers neither key nor SAS token provided, or
	// both provided.
	ErrKindInvalidConfig
	// ErrKindInvalidState covers an operation attempted from a status
	// that does not permit it.
	ErrKindInvalidState
	// ErrKindSignerFailure covers SAS minting failure.
	ErrKindSignerFailure
	// ErrKindClockUnavailable covers the time source returning the
	// indefinite sentinel when a reading was required to proceed.
	ErrKindClockUnavailable
	// ErrKindSubmitFailed covers a non-nil synchronous return from
	// PutToken/DeleteToken.
	ErrKindSubmitFailed
	// ErrKindCbsRejected covers a completion callback reporting a
	// non-OK result; materializes as status Failed.
	ErrKindCbsRejected
	// ErrKindTimeout covers a put-token completion that did not arrive
	// within cbs_request_timeout; materializes as status FailedTimeout.
	ErrKindTimeout
	// ErrKindUnexpectedCredentialType is defensive: a variant mismatch
	// reached a code path that assumed a different variant.
	ErrKindUnexpectedCredentialType
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindInvalidArgument:
		return "invalid_argument"
	case ErrKindInvalidConfig:
		return "invalid_config"
	case ErrKindInvalidState:
		return "invalid_state"
	case ErrKindSignerFailure:
		return "signer_failure"
	case ErrKindClockUnavailable:
		return "clock_unavailable"
	case ErrKindSubmitFailed:
		return "submit_failed"
	case ErrKindCbsRejected:
		return "cbs_rejected"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindUnexpectedCredentialType:
		return "unexpected_credential_type"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every synchronous Authenticator and
// Store operation.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("auth: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newErr(op string, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Kind extracts the ErrorKind from err, if it is (or wraps) an *Error.
func Kind(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
