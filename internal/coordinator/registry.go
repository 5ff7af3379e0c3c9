package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hpcbench/fleet/internal/obslog"
	"github.com/hpcbench/fleet/internal/wire"
	"golang.org/x/exp/slices"
)

// Node is one registered worker, keyed by the (ip, port) the worker
// advertised. IP is always the connection's observed remote address at
// registration time, never a client-declared value.
type Node struct {
	RegisteredAt time.Time
	IP           string
	Port         int
	Info         wire.WorkerInfo
}

// Addr returns the worker's reachable base URL, e.g. "http://10.0.0.11:5000".
func (n Node) Addr() string {
	return fmt.Sprintf("http://%s:%d", n.IP, n.Port)
}

// Registry is the coordinator's in-memory node list. One writer at a time,
// many readers allowed — the whole surface is O(n) work under a single
// mutex, matching the resource model's "hold time is bounded by small O(n)
// work" for the node registry.
type Registry struct {
	mu    sync.RWMutex
	nodes []Node
}

// NewRegistry returns an empty node registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register upserts a node by (ip, port): a second registration from the
// same key replaces the first entry's payload in place, never appending a
// duplicate.
func (r *Registry) Register(ip string, req wire.RegisterRequest) Node {
	addr := fmt.Sprintf("%s:%d", ip, req.Port)
	node := Node{
		RegisteredAt: time.Now(),
		IP:           ip,
		Port:         req.Port,
		Info: wire.WorkerInfo{
			RegisteredAt: time.Now(),
			ID:           addr,
			Addr:         addr,
			Hostname:     req.Hostname,
			OS:           req.OS,
			CPUCount:     req.CPUCount,
			RAMTotal:     req.RAMTotal,
			RAMAvail:     req.RAMAvail,
			DiskTotal:    req.DiskTotal,
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.nodes, func(n Node) bool { return n.Info.ID == addr })
	if idx >= 0 {
		r.nodes[idx] = node
	} else {
		r.nodes = append(r.nodes, node)
	}
	registeredNodes.Set(float64(len(r.nodes)))
	return node
}

// List returns a snapshot of every registered node, safe for the caller to
// range over without holding any lock.
func (r *Registry) List() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// Reload pings every registered node and removes any that fail or time out
// within timeout.
func (r *Registry) Reload(ctx context.Context, timeout time.Duration) {
	snapshot := r.List()
	alive := make(map[string]bool, len(snapshot))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, n := range snapshot {
		wg.Add(1)
		go func(n Node) {
			defer wg.Done()
			pingCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			var resp wire.PingResponse
			err := wire.GetJSON(pingCtx, n.Addr()+"/ping", &resp)

			mu.Lock()
			alive[n.Info.ID] = err == nil
			mu.Unlock()
		}(n)
	}
	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.nodes[:0]
	for _, n := range r.nodes {
		// A node missing from alive registered after the snapshot and was
		// never pinged, so it has not failed and is kept.
		if ok, pinged := alive[n.Info.ID]; ok || !pinged {
			kept = append(kept, n)
		} else {
			obslog.WithComponent("registry").Warn().Str("node", n.Info.ID).Msg("evicting node that failed reload ping")
		}
	}
	r.nodes = kept
	registeredNodes.Set(float64(len(r.nodes)))
}

// Len reports the number of registered nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
