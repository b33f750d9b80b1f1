// Package muxerr implements the closed error taxonomy from spec.md §7.
package muxerr

import (
	"errors"
	"fmt"

	"github.com/thushan/mcpmux/internal/core/domain"
)

// Kind is one of the nine caller-visible error kinds.
type Kind int

const (
	KindConfiguration Kind = iota
	KindNoServersAvailable
	KindConnection
	KindTimeout
	KindProtocol
	KindApplication
	KindFailoverExhausted
	KindDeadlineExceeded
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindNoServersAvailable:
		return "NoServersAvailable"
	case KindConnection:
		return "ConnectionError"
	case KindTimeout:
		return "Timeout"
	case KindProtocol:
		return "ProtocolError"
	case KindApplication:
		return "ApplicationError"
	case KindFailoverExhausted:
		return "FailoverExhausted"
	case KindDeadlineExceeded:
		return "DeadlineExceeded"
	case KindShutdown:
		return "Shutdown"
	default:
		return "UnknownError"
	}
}

// Retryable reports whether PoolManager/Router may retry an error of this kind.
func (k Kind) Retryable() bool {
	switch k {
	case KindConnection, KindTimeout, KindProtocol:
		return true
	default:
		return false
	}
}

// CountsAsHealthFailure reports whether HealthMonitor.Record should treat
// an error of this kind as a health failure (spec.md §7 propagation policy).
func (k Kind) CountsAsHealthFailure() bool {
	switch k {
	case KindConnection, KindTimeout, KindProtocol:
		return true
	default:
		return false
	}
}

// Error is the caller-visible error shape: kind, message, last server
// attempted, and the full routing history (spec.md §7).
type Error struct {
	cause     error
	Kind      Kind
	Message   string
	LastServer string
	History   []domain.RoutingAttempt
}

func (e *Error) Error() string {
	if e.LastServer != "" {
		return fmt.Sprintf("%s: %s (last server: %s)", e.Kind, e.Message, e.LastServer)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is supports errors.Is(err, muxerr.ErrNoServersAvailable) style sentinel
// checks keyed only on Kind, matching the "by kind, not identity" policy.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithServer attaches the last server id attempted.
func (e *Error) WithServer(id string) *Error {
	e.LastServer = id
	return e
}

// WithHistory attaches the routing history accumulated so far.
func (e *Error) WithHistory(h []domain.RoutingAttempt) *Error {
	e.History = h
	return e
}

// Sentinels for errors.Is comparisons against a bare kind, one per taxonomy
// entry in spec.md §7.
var (
	ErrConfiguration      = &Error{Kind: KindConfiguration}
	ErrNoServersAvailable = &Error{Kind: KindNoServersAvailable}
	ErrConnection         = &Error{Kind: KindConnection}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrProtocol           = &Error{Kind: KindProtocol}
	ErrApplication        = &Error{Kind: KindApplication}
	ErrFailoverExhausted  = &Error{Kind: KindFailoverExhausted}
	ErrDeadlineExceeded   = &Error{Kind: KindDeadlineExceeded}
	ErrShutdown           = &Error{Kind: KindShutdown}
)

func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
