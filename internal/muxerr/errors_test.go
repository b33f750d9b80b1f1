package muxerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/mcpmux/internal/core/domain"
)

func TestRetryableOnlyConnectionTimeoutProtocol(t *testing.T) {
	assert.True(t, KindConnection.Retryable())
	assert.True(t, KindTimeout.Retryable())
	assert.True(t, KindProtocol.Retryable())

	assert.False(t, KindConfiguration.Retryable())
	assert.False(t, KindNoServersAvailable.Retryable())
	assert.False(t, KindApplication.Retryable())
	assert.False(t, KindFailoverExhausted.Retryable())
	assert.False(t, KindDeadlineExceeded.Retryable())
	assert.False(t, KindShutdown.Retryable())
}

func TestCountsAsHealthFailureMatchesRetryableSet(t *testing.T) {
	assert.True(t, KindConnection.CountsAsHealthFailure())
	assert.True(t, KindTimeout.CountsAsHealthFailure())
	assert.True(t, KindProtocol.CountsAsHealthFailure())
	assert.False(t, KindApplication.CountsAsHealthFailure())
	assert.False(t, KindNoServersAvailable.CountsAsHealthFailure())
}

func TestKindStringCoversEveryTaxonomyEntry(t *testing.T) {
	cases := map[Kind]string{
		KindConfiguration:      "ConfigurationError",
		KindNoServersAvailable: "NoServersAvailable",
		KindConnection:         "ConnectionError",
		KindTimeout:            "Timeout",
		KindProtocol:           "ProtocolError",
		KindApplication:        "ApplicationError",
		KindFailoverExhausted:  "FailoverExhausted",
		KindDeadlineExceeded:   "DeadlineExceeded",
		KindShutdown:           "Shutdown",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
	assert.Equal(t, "UnknownError", Kind(99).String())
}

func TestErrorMessageIncludesLastServerOnlyWhenSet(t *testing.T) {
	e := New(KindTimeout, "probe timed out")
	assert.Equal(t, "Timeout: probe timed out", e.Error())

	e.WithServer("10.0.0.1:9000")
	assert.Equal(t, "Timeout: probe timed out (last server: 10.0.0.1:9000)", e.Error())
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	e := Wrap(KindConnection, "dial failed", cause)
	assert.ErrorIs(t, e, cause)
	assert.Equal(t, cause, errors.Unwrap(e))
}

func TestWithHistoryAttachesRoutingAttempts(t *testing.T) {
	history := []domain.RoutingAttempt{{ServerID: "a", Success: false}}
	e := New(KindFailoverExhausted, "all servers failed").WithHistory(history)
	assert.Equal(t, history, e.History)
}

func TestIsComparesByKindNotIdentity(t *testing.T) {
	a := New(KindConnection, "first failure")
	b := New(KindConnection, "second, unrelated failure")
	assert.True(t, errors.Is(a, b), "two distinct *Error values of the same Kind must compare equal under Is")

	c := New(KindTimeout, "different kind")
	assert.False(t, errors.Is(a, c))
}

func TestErrorsIsAgainstSentinels(t *testing.T) {
	wrapped := fmt.Errorf("enqueue: %w", New(KindShutdown, "pool manager is shutting down"))
	assert.True(t, errors.Is(wrapped, ErrShutdown))
	assert.False(t, errors.Is(wrapped, ErrTimeout))
}

func TestKindOfExtractsKindFromWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("dispatch: %w", New(KindNoServersAvailable, "no eligible servers"))
	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindNoServersAvailable, kind)
}

func TestKindOfFalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain stdlib error"))
	assert.False(t, ok)
}
