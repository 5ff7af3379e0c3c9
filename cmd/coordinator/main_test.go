package main

import (
	"context"
	"testing"
	"time"

	"github.com/hpcbench/fleet/internal/coordinator"
	"github.com/hpcbench/fleet/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReloadLoopEvictsUnreachableNodeAndStopsOnCancel(t *testing.T) {
	registry := coordinator.NewRegistry()
	registry.Register("127.0.0.1", wire.RegisterRequest{Port: 9, Hostname: "dead"})
	require.Equal(t, 1, registry.Len())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runReloadLoop(ctx, registry, 20*time.Millisecond, 50*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return registry.Len() == 0
	}, time.Second, 10*time.Millisecond, "unreachable node was never evicted")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runReloadLoop did not stop after cancel")
	}

	assert.Equal(t, 0, registry.Len())
}
