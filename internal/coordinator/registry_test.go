package coordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/hpcbench/fleet/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterIsIdempotentByIPPort(t *testing.T) {
	r := NewRegistry()

	first := r.Register("10.0.0.11", wire.RegisterRequest{Port: 5000, Hostname: "h1", CPUCount: 4})
	second := r.Register("10.0.0.11", wire.RegisterRequest{Port: 5000, Hostname: "h2", CPUCount: 8})

	require.Equal(t, 1, r.Len())
	nodes := r.List()
	require.Len(t, nodes, 1)
	assert.Equal(t, "h2", nodes[0].Info.Hostname)
	assert.Equal(t, 8, nodes[0].Info.CPUCount)
	assert.Equal(t, first.Info.ID, second.Info.ID)
}

func TestRegistryRegisterDistinguishesByPort(t *testing.T) {
	r := NewRegistry()

	r.Register("10.0.0.11", wire.RegisterRequest{Port: 5000})
	r.Register("10.0.0.11", wire.RegisterRequest{Port: 5001})

	assert.Equal(t, 2, r.Len())
}

func TestRegistryReloadEvictsUnreachableNodes(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = wire.WriteJSON(w, http.StatusOK, wire.PingResponse{Message: "pong"})
	}))
	defer healthy.Close()

	unreachable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	unreachable.Close() // close immediately: connection refused on ping

	r := NewRegistry()
	registerAt(t, r, healthy.URL)
	registerAt(t, r, unreachable.URL)
	require.Equal(t, 2, r.Len())

	r.Reload(context.Background(), 500*time.Millisecond)

	nodes := r.List()
	require.Len(t, nodes, 1)
	assert.Equal(t, hostOf(t, healthy.URL), nodes[0].IP)
}

func TestRegistryListReturnsSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Register("10.0.0.11", wire.RegisterRequest{Port: 5000})

	snapshot := r.List()
	snapshot[0].Info.Hostname = "mutated"

	assert.NotEqual(t, "mutated", r.List()[0].Info.Hostname)
}

// registerAt registers a node whose IP/port are parsed out of a
// httptest.Server URL, so Reload's /ping call reaches the fake server.
func registerAt(t *testing.T, r *Registry, rawURL string) {
	t.Helper()
	host, port := splitHostPort(t, rawURL)
	r.Register(host, wire.RegisterRequest{Port: port})
}

func hostOf(t *testing.T, rawURL string) string {
	t.Helper()
	host, _ := splitHostPort(t, rawURL)
	return host
}

func splitHostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}
