package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/mcpmux/internal/core/domain"
	"github.com/thushan/mcpmux/internal/muxerr"
	"github.com/thushan/mcpmux/internal/testutil"
)

type fakeSelector struct {
	mu       sync.Mutex
	srv      *domain.Server
	err      error
	outcomes []bool
}

func (s *fakeSelector) Select(_ context.Context, _ *domain.RequestContext, eligible []*domain.Server) (*domain.Server, domain.RoutingDecision, error) {
	if s.err != nil {
		return nil, domain.RoutingDecision{}, s.err
	}
	if len(eligible) == 0 {
		return nil, domain.RoutingDecision{}, muxerr.New(muxerr.KindNoServersAvailable, "no eligible servers")
	}
	return s.srv, domain.RoutingDecision{ServerID: s.srv.ID}, nil
}

func (s *fakeSelector) RecordOutcome(_ domain.RoutingDecision, success bool, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, success)
}

func testPoolConfig() Config {
	cfg := DefaultConfig()
	cfg.QueueTick = 5 * time.Millisecond
	cfg.RequestTimeout = 200 * time.Millisecond
	cfg.ConnectionTimeout = 200 * time.Millisecond
	cfg.MaxRetries = 2
	cfg.BackoffStrategy = domain.BackoffFixed
	cfg.InitialDelay = 5 * time.Millisecond
	cfg.MaxDelay = 10 * time.Millisecond
	cfg.ShutdownDrain = 50 * time.Millisecond
	cfg.QueueCapacity = 100
	return cfg
}

func TestEnqueueResolvesOnSuccessfulDispatch(t *testing.T) {
	reg := testutil.NewRegistry()
	require.NoError(t, reg.Add(domain.ServerConfig{Host: "127.0.0.1", Port: 9001}))
	srv, _ := reg.Get("127.0.0.1:9001")
	require.NoError(t, reg.Update(srv.ID, func(s *domain.Server) { s.State = domain.StateHealthy }))

	dialer := testutil.NewDialer()
	dialer.Set("127.0.0.1", 9001, &testutil.Conn{QueryResp: domain.RAGResponse{Metadata: domain.RAGResponseMetadata{ServerID: srv.ID}}})

	sel := &fakeSelector{srv: srv}
	m := New(reg, testutil.NewHealth(), dialer, sel, testPoolConfig(), nil, testutil.NewEvents())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))

	resp, err := m.Enqueue(context.Background(), domain.RAGRequest{Query: "hello"}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, srv.ID, resp.Metadata.ServerID)
}

func TestEnqueueFailsImmediatelyWhenNoEligibleServers(t *testing.T) {
	reg := testutil.NewRegistry()
	sel := &fakeSelector{err: muxerr.New(muxerr.KindNoServersAvailable, "none registered")}
	m := New(reg, testutil.NewHealth(), testutil.NewDialer(), sel, testPoolConfig(), nil, testutil.NewEvents())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))

	_, err := m.Enqueue(context.Background(), domain.RAGRequest{Query: "hi"}, 1, nil)
	require.Error(t, err)
	kind, ok := muxerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, muxerr.KindNoServersAvailable, kind)
}

func TestEnqueueRejectsWhenShuttingDown(t *testing.T) {
	reg := testutil.NewRegistry()
	m := New(reg, testutil.NewHealth(), testutil.NewDialer(), &fakeSelector{}, testPoolConfig(), nil, testutil.NewEvents())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	require.NoError(t, m.Shutdown(shutdownCtx))

	_, err := m.Enqueue(context.Background(), domain.RAGRequest{Query: "too late"}, 1, nil)
	require.Error(t, err)
	kind, ok := muxerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, muxerr.KindShutdown, kind)
}

func TestShutdownRejectsItemsStillQueuedWithNoEligibleServer(t *testing.T) {
	// one healthy server already at MaxRequestsPerServer: nothing is
	// eligible, so dispatch capacity stays 0 and the item waits its turn.
	reg := testutil.NewRegistry()
	busy := domain.ServerConfig{Host: "127.0.0.1", Port: 9003}
	require.NoError(t, reg.Add(busy))
	require.NoError(t, reg.Update(busy.ID(), func(s *domain.Server) { s.ActiveRequests = testPoolConfig().MaxRequestsPerServer }))
	m := New(reg, testutil.NewHealth(), testutil.NewDialer(), &fakeSelector{}, testPoolConfig(), nil, testutil.NewEvents())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Enqueue(context.Background(), domain.RAGRequest{Query: "stuck"}, 1, nil)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond) // let it sit on the queue, unreachable since no server is eligible
	assert.Equal(t, 1, m.QueueSize())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	require.NoError(t, m.Shutdown(shutdownCtx))

	select {
	case err := <-errCh:
		require.Error(t, err)
		kind, ok := muxerr.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, muxerr.KindShutdown, kind)
	case <-time.After(time.Second):
		t.Fatal("enqueue never returned after shutdown")
	}
}

func TestRetryOrFailExhaustsThenRejectsFailoverExhausted(t *testing.T) {
	reg := testutil.NewRegistry()
	require.NoError(t, reg.Add(domain.ServerConfig{Host: "127.0.0.1", Port: 9002}))
	srv, _ := reg.Get("127.0.0.1:9002")
	require.NoError(t, reg.Update(srv.ID, func(s *domain.Server) { s.State = domain.StateHealthy }))

	dialer := testutil.NewDialer()
	dialer.Set("127.0.0.1", 9002, &testutil.Conn{QueryErr: errors.New("backend exploded")})

	sel := &fakeSelector{srv: srv}
	cfg := testPoolConfig()
	cfg.MaxRetries = 1
	m := New(reg, testutil.NewHealth(), dialer, sel, cfg, nil, testutil.NewEvents())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))

	_, err := m.Enqueue(context.Background(), domain.RAGRequest{Query: "doomed"}, 1, nil)
	require.Error(t, err)
	kind, ok := muxerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, muxerr.KindFailoverExhausted, kind)
}

func TestQueueSizeReflectsPendingItems(t *testing.T) {
	reg := testutil.NewRegistry()
	m := New(reg, testutil.NewHealth(), testutil.NewDialer(), &fakeSelector{}, testPoolConfig(), nil, testutil.NewEvents())
	assert.Equal(t, 0, m.QueueSize())
}
