package worker

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPool_RunsJobs(t *testing.T) {
	p := New(Config{Workers: 2, QueueSize: 8}, quietLogger())

	var ran atomic.Int32
	for i := 0; i < 8; i++ {
		require.NoError(t, p.Submit(func(context.Context) { ran.Add(1) }))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	assert.Equal(t, int32(8), ran.Load())
}

func TestPool_QueueFull(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, quietLogger())

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	require.NoError(t, p.Submit(func(context.Context) {}))
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrQueueFull)

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, quietLogger())
	require.NoError(t, p.Shutdown(context.Background()))
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrClosed)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_ShutdownDeadlineCancelsJobs(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, quietLogger())

	cancelled := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job context was not cancelled")
	}
}

func TestPool_RecoversPanics(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 2}, quietLogger())

	var ran atomic.Bool
	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(func(context.Context) { ran.Store(true) }))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, ran.Load())
}
