// Package errors defines the failure taxonomy shared by the portal client,
// the report downloader and the batch runner.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the caller should react to it.
type Kind string

const (
	// KindPortalUnavailable covers network and parse failures while reaching
	// the portal. Retrying (with backoff) is the caller's choice.
	KindPortalUnavailable Kind = "portal_unavailable"

	// KindCaptchaRejected means the portal refused the CAPTCHA answer. A
	// fresh login page must be fetched before the next attempt.
	KindCaptchaRejected Kind = "captcha_rejected"

	// KindInvalidCredentials is terminal for the account. Retrying with a new
	// CAPTCHA will not help.
	KindInvalidCredentials Kind = "invalid_credentials"

	// KindDownloadFailed marks a single task failure; the account's remaining
	// tasks still run.
	KindDownloadFailed Kind = "download_failed"
)

// Error carries the failure kind plus the account and task context needed to
// produce one human-readable event per failure.
type Error struct {
	Kind    Kind
	Account string // account number, when known
	Period  string // trade date or month, when the failure is task-scoped
	Report  string // report kind label, when the failure is task-scoped
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg != "" {
			msg = msg + ": " + e.Err.Error()
		} else {
			msg = e.Err.Error()
		}
	}
	if e.Account != "" {
		return fmt.Sprintf("%s [account %s]: %s", e.Kind, e.Account, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error without an underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithAccount returns a copy annotated with the account number.
func (e *Error) WithAccount(accountNo string) *Error {
	clone := *e
	clone.Account = accountNo
	return &clone
}

// WithTask returns a copy annotated with the report kind and period.
func (e *Error) WithTask(report, period string) *Error {
	clone := *e
	clone.Report = report
	clone.Period = period
	return &clone
}

// KindOf extracts the Kind from err, or empty when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether a failure of this kind may be retried by the
// caller. Credential rejections and task failures are not retried in place.
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindPortalUnavailable, KindCaptchaRejected:
		return true
	default:
		return false
	}
}
