package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers. Transient is the only kind that is
// safe to retry with backoff.
type Kind string

const (
	KindValidation        = Kind("validation")
	KindForbidden         = Kind("forbidden")
	KindInvalidState      = Kind("invalid-state")
	KindIdentityNotOwned  = Kind("identity-not-owned")
	KindProfileNotFound   = Kind("profile-not-found")
	KindProofInvalid      = Kind("proof-invalid")
	KindCredentialInvalid = Kind("credential-invalid")
	KindContentNotFound   = Kind("content-not-found")
	KindDecryptionFailed  = Kind("decryption-failed")
	KindTransient         = Kind("transient")
	KindInternal          = Kind("internal")
)

var ErrUnknownCommand = errors.New("unknown command")

// Error carries a kind plus a human readable message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...interface{}) *Error {
	return newError(KindValidation, format, args...)
}

func Forbiddenf(format string, args ...interface{}) *Error {
	return newError(KindForbidden, format, args...)
}

func InvalidStatef(format string, args ...interface{}) *Error {
	return newError(KindInvalidState, format, args...)
}

func IdentityNotOwnedf(format string, args ...interface{}) *Error {
	return newError(KindIdentityNotOwned, format, args...)
}

func ProfileNotFoundf(format string, args ...interface{}) *Error {
	return newError(KindProfileNotFound, format, args...)
}

func ProofInvalidf(format string, args ...interface{}) *Error {
	return newError(KindProofInvalid, format, args...)
}

func CredentialInvalidf(format string, args ...interface{}) *Error {
	return newError(KindCredentialInvalid, format, args...)
}

func ContentNotFoundf(format string, args ...interface{}) *Error {
	return newError(KindContentNotFound, format, args...)
}

func DecryptionFailedf(format string, args ...interface{}) *Error {
	return newError(KindDecryptionFailed, format, args...)
}

func Transientf(format string, args ...interface{}) *Error {
	return newError(KindTransient, format, args...)
}

func Internalf(format string, args ...interface{}) *Error {
	return newError(KindInternal, format, args...)
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of err, unwrapping as needed. Unclassified errors
// count as Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTransient reports whether the caller may retry with backoff.
func IsTransient(err error) bool {
	return IsKind(err, KindTransient)
}
