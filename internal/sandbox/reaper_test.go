package sandbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/dotbox/internal/sandbox"
)

func TestReaperEvictsIdleSandboxes(t *testing.T) {
	m, engine, clock := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, sandbox.V8, "idle", nil)
	require.NoError(t, err)
	clock.Advance(time.Hour)

	r := m.StartReaper(ctx, 10*time.Millisecond, 30*time.Minute)
	defer r.Stop()

	require.Eventually(t, func() bool { return engine.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestReaperStopWaits(t *testing.T) {
	m, _, _ := newTestManager(t)

	r := m.StartReaper(context.Background(), time.Hour, time.Minute)
	r.Stop()

	select {
	case <-r.Done():
	default:
		t.Fatal("reaper still running after Stop")
	}
}

func TestReaperExitsWithParentContext(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())

	r := m.StartReaper(ctx, time.Hour, time.Minute)
	cancel()

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not exit on context cancellation")
	}
}

func TestShutdownCleansUpAfterCancellation(t *testing.T) {
	m, engine, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())

	for _, p := range []string{"a", "b"} {
		_, err := m.Create(ctx, sandbox.V8, p, nil)
		require.NoError(t, err)
	}
	r := m.StartReaper(ctx, time.Hour, time.Minute)
	cancel()

	n := m.Shutdown(ctx, r)
	assert.Equal(t, 2, n)
	assert.Zero(t, engine.Len())
}
