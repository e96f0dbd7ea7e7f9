// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/criticus/internal/batch"
	"github.com/tomtom215/criticus/internal/models"
)

type mockServer struct {
	started  chan struct{}
	shutdown atomic.Bool
	serveErr error
	release  chan struct{}
}

func newMockServer() *mockServer {
	return &mockServer{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (m *mockServer) ListenAndServe() error {
	close(m.started)
	if m.serveErr != nil {
		return m.serveErr
	}
	<-m.release
	return nil
}

func (m *mockServer) Shutdown(ctx context.Context) error {
	m.shutdown.Store(true)
	close(m.release)
	return nil
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	srv := newMockServer()
	svc := NewHTTPService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-srv.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	if !srv.shutdown.Load() {
		t.Error("Shutdown was not called")
	}
}

func TestHTTPServiceStartupFailure(t *testing.T) {
	srv := newMockServer()
	srv.serveErr = errors.New("address in use")
	svc := NewHTTPService(srv, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, srv.serveErr) {
		t.Errorf("Serve returned %v, want wrapped startup error", err)
	}
}

type countingGC struct {
	sweeps atomic.Int64
}

func (c *countingGC) RunGC() error {
	c.sweeps.Add(1)
	return nil
}

func TestJanitorSweepsOnInterval(t *testing.T) {
	gc := &countingGC{}
	svc := NewJanitorService(gc, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = svc.Serve(ctx)

	if gc.sweeps.Load() < 2 {
		t.Errorf("sweeps = %d, want at least 2", gc.sweeps.Load())
	}
}

type countingRunner struct {
	runs atomic.Int64
}

func (c *countingRunner) Run(ctx context.Context, kind models.MediaKind, mode batch.Mode) (*models.BatchStats, error) {
	c.runs.Add(1)
	return models.NewBatchStats("test", string(mode), kind, 0), nil
}

func TestRefreshRunsAllKindsOnStart(t *testing.T) {
	runner := &countingRunner{}
	svc := NewRefreshService(runner, []models.MediaKind{models.KindMovie, models.KindShow}, time.Hour, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = svc.Serve(ctx); close(done) }()

	deadline := time.Now().Add(time.Second)
	for runner.runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if runner.runs.Load() != 2 {
		t.Errorf("runs = %d, want one per kind", runner.runs.Load())
	}
}
