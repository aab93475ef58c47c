// Package fault classifies errors by origin so the retry coordinator can
// decide whether a failure is worth retrying. Validation and config
// faults are never retried; infrastructure faults (store, queue,
// transport) are retried up to policy; unknown errors default to
// retryable, bounded by the job's retry budget.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the classification of a fault.
type Kind uint8

const (
	// KindUnknown is any error not produced by this package.
	KindUnknown Kind = iota
	// KindValidation marks bad input. Never retried.
	KindValidation
	// KindConfig marks missing or invalid setup. Never retried,
	// typically fatal at startup.
	KindConfig
	// KindInfra marks store/queue/transport connectivity failures.
	// Retried up to policy.
	KindInfra
	// KindBusiness marks terminal business conditions such as an
	// exhausted retry budget. A signal, not a bug.
	KindBusiness
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfig:
		return "config"
	case KindInfra:
		return "infra"
	case KindBusiness:
		return "business"
	}
	return "unknown"
}

// Error is a classified error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// Validation creates a validation fault.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Config creates a configuration fault.
func Config(msg string) *Error {
	return &Error{Kind: KindConfig, Message: msg}
}

// Infra creates an infrastructure fault wrapping its cause.
func Infra(msg string, cause error) *Error {
	return &Error{Kind: KindInfra, Message: msg, Err: cause}
}

// Business creates a business-logic fault wrapping its cause.
func Business(msg string, cause error) *Error {
	return &Error{Kind: KindBusiness, Message: msg, Err: cause}
}

// RetryExceeded signals that a job exhausted its retry budget.
func RetryExceeded(jobID string, maxRetries int) *Error {
	return &Error{
		Kind:    KindBusiness,
		Message: fmt.Sprintf("job %s exceeded max retries (%d)", jobID, maxRetries),
	}
}

// KindOf returns the classification of err, walking the wrap chain.
// Errors not produced by this package are KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Retryable reports whether err is worth retrying. Validation and
// config faults are not; infrastructure and business faults are; unknown
// errors fail open toward availability.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindConfig:
		return false
	}
	return true
}
