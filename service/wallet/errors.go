package wallet

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/brojonat/solwallet/service/solana"
)

// Kind classifies an orchestration failure.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindNoSourceAccount    Kind = "no_source_account"
	KindProvisioning       Kind = "provisioning"
	KindQuoteUnavailable   Kind = "quote_unavailable"
	KindTransactionExpired Kind = "transaction_expired"
	KindSubmissionFailed   Kind = "submission_failed"
	KindUnexpected         Kind = "unexpected"
)

// Error is the typed error returned by the orchestrators. Messages never
// contain key material.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	// Set for KindInsufficientFunds, in base units of the checked asset.
	Available uint64
	Required  uint64
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrValidation) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrInsufficientFunds  = &Error{Kind: KindInsufficientFunds}
	ErrNoSourceAccount    = &Error{Kind: KindNoSourceAccount}
	ErrProvisioning       = &Error{Kind: KindProvisioning}
	ErrQuoteUnavailable   = &Error{Kind: KindQuoteUnavailable}
	ErrTransactionExpired = &Error{Kind: KindTransactionExpired}
	ErrSubmissionFailed   = &Error{Kind: KindSubmissionFailed}
	ErrUnexpected         = &Error{Kind: KindUnexpected}
)

// KindOf returns the kind of the first *Error in err's chain, or
// KindUnexpected when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// GenericFailureMessage is what callers see for unexpected failures.
const GenericFailureMessage = "internal error"

// RPC clients put the full endpoint URL, API key included, into their errors.
var urlPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^\s"']+`)

// PublicMessage renders err for callers outside the process. Unexpected
// failures collapse to GenericFailureMessage. Other kinds keep their message
// but drop the wrapped cause, except validation where the cause is the
// caller's own input. URLs are redacted in every case.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindUnexpected {
		return GenericFailureMessage
	}
	msg := string(e.Kind)
	switch {
	case e.Kind == KindValidation:
		msg = e.Error()
	case e.Message != "":
		msg += ": " + e.Message
	}
	return urlPattern.ReplaceAllString(msg, "[redacted]")
}

func validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func insufficientFunds(asset string, decimals uint8, available, required uint64) *Error {
	return &Error{
		Kind: KindInsufficientFunds,
		Message: fmt.Sprintf("%s balance %s is below required %s", asset,
			solana.FromBaseUnits(available, decimals), solana.FromBaseUnits(required, decimals)),
		Available: available,
		Required:  required,
	}
}

func wrapErr(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// asError keeps typed errors as they are and wraps anything else as unexpected.
func asError(err error, format string, args ...interface{}) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return wrapErr(KindUnexpected, err, format, args...)
}
