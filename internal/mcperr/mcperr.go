// Package mcperr defines the typed error kinds described in spec.md §7, so
// that workflow code can branch on *what kind* of failure occurred instead
// of matching error strings. Boundary errors are annotated with
// github.com/pkg/errors so operator-facing diagnostics retain a stack trace
// across the orchestrator's workflow hops.
package mcperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error for exit-code and handling purposes.
type Kind string

const (
	KindUser          Kind = "user_error"
	KindNotFound      Kind = "not_found"
	KindNetwork       Kind = "network_error"
	KindIntegrity     Kind = "integrity_error"
	KindSizeLimit     Kind = "size_limit_error"
	KindPathTraversal Kind = "path_traversal_error"
	KindPolicy        Kind = "policy_violation"
	KindUnexpected    Kind = "unexpected_error"
)

// ExitCode maps a Kind to the CLI exit-code contract in §6/§7.
func (k Kind) ExitCode() int {
	switch k {
	case KindUser, KindNotFound:
		return 2
	case KindNetwork, KindIntegrity, KindSizeLimit, KindPathTraversal, KindPolicy:
		return 1
	default:
		return 3
	}
}

// Error is a typed, wrapped error carrying a Kind and optional structured
// fields (e.g. an HTTP status code, a policy reason code).
type Error struct {
	Kind    Kind
	Message string
	cause   error
	Fields  map[string]interface{}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind, capturing a stack trace via
// pkg/errors when cause is non-nil.
func New(kind Kind, cause error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	var wrapped error
	if cause != nil {
		wrapped = errors.WithStack(cause)
	}
	return &Error{Kind: kind, Message: msg, cause: wrapped}
}

// WithField attaches a structured field and returns e for chaining.
func (e *Error) WithField(key string, value interface{}) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// User constructs a KindUser error.
func User(format string, args ...interface{}) *Error {
	return New(KindUser, nil, format, args...)
}

// NotFound constructs a KindNotFound error.
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, nil, format, args...)
}

// Network constructs a KindNetwork error, optionally carrying a status code.
func Network(statusCode int, cause error, format string, args ...interface{}) *Error {
	e := New(KindNetwork, cause, format, args...)
	if statusCode > 0 {
		e.WithField("statusCode", statusCode)
	}
	return e
}

// Integrity constructs a KindIntegrity error.
func Integrity(format string, args ...interface{}) *Error {
	return New(KindIntegrity, nil, format, args...)
}

// SizeLimit constructs a KindSizeLimit error.
func SizeLimit(format string, args ...interface{}) *Error {
	return New(KindSizeLimit, nil, format, args...)
}

// PathTraversal constructs a KindPathTraversal error.
func PathTraversal(format string, args ...interface{}) *Error {
	return New(KindPathTraversal, nil, format, args...)
}

// ReasonCode enumerates the structured policy block reasons from §4.8/§7.
type ReasonCode string

const (
	ReasonDenylist       ReasonCode = "DENYLIST"
	ReasonAllowlist      ReasonCode = "ALLOWLIST"
	ReasonDenyUnverified ReasonCode = "DENY_UNVERIFIED"
	ReasonMaxRiskScore   ReasonCode = "MAX_RISK_SCORE"
	ReasonBlockSeverity  ReasonCode = "BLOCK_SEVERITY"
	ReasonPolicy         ReasonCode = "POLICY"
)

// Policy constructs a KindPolicy error carrying a structured reason code.
func Policy(reason ReasonCode, format string, args ...interface{}) *Error {
	e := New(KindPolicy, nil, format, args...)
	e.WithField("reason", string(reason))
	return e
}

// Unexpected constructs a KindUnexpected error.
func Unexpected(cause error, format string, args ...interface{}) *Error {
	return New(KindUnexpected, cause, format, args...)
}

// As reports whether err is an *Error, returning it if so.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else
// KindUnexpected.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnexpected
}
