package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hpcbench/fleet/internal/obslog"
	"github.com/hpcbench/fleet/internal/wire"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// submitTimeout bounds a single POST to a worker's submit endpoint.
	submitTimeout = 10 * time.Second
	// statusTimeout bounds a single GET to a worker's task_status endpoint.
	statusTimeout = 10 * time.Second
	// resultsTimeout bounds a single GET to a worker's get_results
	// endpoint; larger than submit/status because artifact bodies can be
	// multiple result files' worth of text.
	resultsTimeout = 30 * time.Second

	// submitStagger is the advisory per-node delay used to avoid a
	// thundering herd on shared resources when fanning out submissions.
	submitStagger = 2 * time.Second

	// pollInterval is the production-scale sleep between monitor loop
	// passes over the active-tasks set.
	pollInterval = 5 * time.Second

	// unreachableThreshold is the number of consecutive unreachable polls
	// after which a task is abandoned.
	unreachableThreshold = 3
)

// taskOutcome is the terminal disposition the monitor loop recorded for one
// node's task, surfaced in the dispatch response's outcomes map.
type taskOutcome string

const (
	outcomeCompleted   taskOutcome = "completed"
	outcomeConfigError taskOutcome = "configuration_error"
	outcomeExecError   taskOutcome = "execution_error"
	outcomeUnreachable taskOutcome = "unreachable"
)

// activeTask is one in-flight task the monitor loop is still watching: a
// worker endpoint, the task_id it returned, the local directory artifacts
// get written into, and a running count of consecutive unreachable polls.
type activeTask struct {
	TaskID           string
	NodeIP           string
	Addr             string
	LocalDir         string
	consecutiveFails int
}

// Session is a transient dispatch session: one operator command, a fleet of
// in-flight tasks, and the per-node result tree they write into.
//
// Lifecycle:
//   - created by DispatchCompetitive or DispatchCooperative
//   - populated with one activeTask per node that accepted a submission
//   - drained by monitor as tasks reach a terminal state or go unreachable
//   - torn down by finish once active is empty
//
// Thread safety:
//   - mu guards active and outcomes; everything else is set once at
//     construction and read-only afterward
//   - collectl owns its own process lifecycle independently of mu
type Session struct {
	Kind       SessionKind
	StartedAt  time.Time
	ResultRoot string

	mu     sync.Mutex
	active map[string]*activeTask

	outcomes map[string]taskOutcome
	collectl *CollectlRunner
}

// Dispatcher drives dispatch sessions against a Registry. It holds no
// session state of its own between calls; each Dispatch* call owns one
// Session for its lifetime. PollInterval, SubmitStagger and
// UnreachableThreshold are exported so tests can shrink them instead of
// waiting on production-scale sleeps (per the re-architecture guidance to
// make polling loops' timing injectable).
type Dispatcher struct {
	// Registry supplies the node list both dispatch disciplines fan out to.
	Registry *Registry
	// ResultsBaseDir is the parent directory timestamped session trees are
	// created under, e.g. "benchmarks".
	ResultsBaseDir string
	// DefaultSlots is the per-node slot count used for cooperative
	// dispatch when the operator's request doesn't specify one.
	DefaultSlots int

	// PollInterval is the sleep between monitor loop passes.
	PollInterval time.Duration
	// SubmitStagger is the per-node delay applied before each competitive
	// submission, indexed by fan-out order.
	SubmitStagger time.Duration
	// UnreachableThreshold is the number of consecutive failed polls
	// before a task is abandoned as unreachable.
	UnreachableThreshold int
}

// NewDispatcher returns a Dispatcher writing session trees under baseDir
// ("benchmarks/<timestamp>/"), with production-scale timing defaults.
//
// Parameters:
//   - registry: the node list both dispatch disciplines read from
//   - baseDir: parent directory for timestamped session result trees
//
// Returns:
//   - a Dispatcher ready to accept DispatchCompetitive/DispatchCooperative
//     calls, with PollInterval, SubmitStagger and UnreachableThreshold set
//     to production defaults (callers needing deterministic tests override
//     these fields directly)
func NewDispatcher(registry *Registry, baseDir string) *Dispatcher {
	return &Dispatcher{
		Registry:             registry,
		ResultsBaseDir:       baseDir,
		DefaultSlots:         1,
		PollInterval:         pollInterval,
		SubmitStagger:        submitStagger,
		UnreachableThreshold: unreachableThreshold,
	}
}

// newResultRoot creates and returns a fresh timestamped directory under
// ResultsBaseDir for one dispatch session's artifacts.
func (d *Dispatcher) newResultRoot() (string, error) {
	root := filepath.Join(d.ResultsBaseDir, time.Now().Format("2006-01-02_15-04-05"))
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("dispatch: create result root %s: %w", root, err)
	}
	return root, nil
}

// DispatchCompetitive submits req to every registered node and returns once
// every task has reached a terminal state or been abandoned as
// unreachable. Submissions fan out in parallel, staggered by SubmitStagger
// per node to avoid a thundering herd on shared resources.
//
// Behavior:
//   - validates req before touching the registry or filesystem
//   - snapshots the registry once; nodes registering mid-dispatch are not
//     picked up by this session
//   - a node whose submission fails (non-2xx, timeout, transport error) is
//     logged and skipped, not retried — it never enters the active set
//   - blocks until the monitor loop drains every task that was accepted
//
// Parameters:
//   - ctx: governs the whole dispatch session, including the monitor loop;
//     cancellation here does not cancel a job already running on a worker
//   - req: the shared benchmark parameter set posted to every node
//
// Returns:
//   - the finished Session (outcomes populated per node) and a nil error,
//     unless req failed validation or the session's result root could not
//     be created
func (d *Dispatcher) DispatchCompetitive(ctx context.Context, req wire.SubmitCompetitiveRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	nodes := d.Registry.List()
	root, err := d.newResultRoot()
	if err != nil {
		return nil, err
	}

	sess := &Session{
		Kind:       KindCompetitive,
		StartedAt:  time.Now(),
		ResultRoot: root,
		active:     make(map[string]*activeTask),
		outcomes:   make(map[string]taskOutcome),
		collectl:   &CollectlRunner{},
	}
	sess.collectl.Start(root)

	log := obslog.WithComponent("dispatch")

	// Fan out with errgroup so the N submissions run concurrently; each
	// goroutine's own stagger delay keeps the first POST to each node
	// spread out even though they all start at once.
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range nodes {
		i, n := i, n
		g.Go(func() error {
			select {
			case <-time.After(time.Duration(i) * d.SubmitStagger):
			case <-gctx.Done():
				return nil
			}

			nodeDir := filepath.Join(root, n.IP)
			if err := os.MkdirAll(nodeDir, 0o755); err != nil {
				log.Warn().Str("node", n.IP).Err(err).Msg("failed to create per-node result dir")
				return nil
			}

			submitCtx, cancel := context.WithTimeout(gctx, submitTimeout)
			defer cancel()

			var resp wire.SubmitResponse
			status, err := wire.PostJSONStatus(submitCtx, n.Addr()+"/submit_competitive_benchmark", req, &resp)
			if err != nil {
				log.Warn().Str("node", n.IP).Int("status", status).Err(err).Msg("competitive submit failed")
				dispatchSubmitFailuresTotal.WithLabelValues(string(KindCompetitive)).Inc()
				return nil
			}

			sess.mu.Lock()
			sess.active[n.IP] = &activeTask{TaskID: resp.TaskID, NodeIP: n.IP, Addr: n.Addr(), LocalDir: nodeDir}
			sess.mu.Unlock()
			dispatchedTasksTotal.WithLabelValues(string(KindCompetitive)).Inc()
			return nil
		})
	}
	// Every goroutine above returns nil unconditionally; g.Wait() never
	// actually reports an error, it just blocks until the fan-out drains.
	_ = g.Wait()

	d.monitor(ctx, sess)
	d.finish(sess)
	return sess, nil
}

// CooperativeRequest is the coordinator-level request for a cooperative
// dispatch: the operator supplies the benchmark parameters and a uniform
// per-node slot count; the coordinator builds node_slots from the registry.
type CooperativeRequest struct {
	PS           int `json:"ps"`
	QS           int `json:"qs"`
	NValue       int `json:"n_value"`
	NB           int `json:"nb"`
	SlotsPerNode int `json:"slots_per_node"`
}

// DispatchCooperative selects the first registered node as initiator,
// builds node_slots from every registered node, and submits a single
// cooperative job.
//
// Behavior:
//   - the registry's list order picks the initiator; no other selection
//     policy is applied
//   - every registered node gets SlotsPerNode slots (or DefaultSlots if
//     SlotsPerNode is zero or negative) — the coordinator does not enforce
//     that the resulting process count is sane, the MPI runtime does
//   - only the initiator is tracked in the session's active set; peer
//     nodes never see a submit call of their own
//
// Parameters:
//   - ctx: governs the submit call and the monitor loop
//   - req: benchmark parameters plus the uniform per-node slot count
//
// Returns:
//   - the finished Session, or an error if there are no registered nodes,
//     the resulting wire request fails validation, the session or
//     initiator result directory cannot be created, or the submit call
//     itself fails
func (d *Dispatcher) DispatchCooperative(ctx context.Context, req CooperativeRequest) (*Session, error) {
	nodes := d.Registry.List()
	if len(nodes) == 0 {
		return nil, fmt.Errorf("dispatch: no registered nodes for cooperative job")
	}

	slots := req.SlotsPerNode
	if slots <= 0 {
		slots = d.DefaultSlots
	}
	nodeSlots := make(map[string]int, len(nodes))
	for _, n := range nodes {
		nodeSlots[n.IP] = slots
	}

	wireReq := wire.SubmitCooperativeRequest{
		NodeSlots: nodeSlots,
		PS:        req.PS,
		QS:        req.QS,
		NValue:    req.NValue,
		NB:        req.NB,
	}
	if err := wireReq.Validate(); err != nil {
		return nil, err
	}

	root, err := d.newResultRoot()
	if err != nil {
		return nil, err
	}

	initiator := nodes[0]
	nodeDir := filepath.Join(root, initiator.IP)
	if err := os.MkdirAll(nodeDir, 0o755); err != nil {
		return nil, fmt.Errorf("dispatch: create per-node result dir: %w", err)
	}

	sess := &Session{
		Kind:       KindCooperative,
		StartedAt:  time.Now(),
		ResultRoot: root,
		active:     make(map[string]*activeTask),
		outcomes:   make(map[string]taskOutcome),
		collectl:   &CollectlRunner{},
	}
	sess.collectl.Start(root)

	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	var resp wire.SubmitResponse
	status, err := wire.PostJSONStatus(submitCtx, initiator.Addr()+"/submit_cooperative_benchmark", wireReq, &resp)
	if err != nil {
		dispatchSubmitFailuresTotal.WithLabelValues(string(KindCooperative)).Inc()
		return nil, fmt.Errorf("dispatch: cooperative submit to %s failed (status %d): %w", initiator.IP, status, err)
	}
	dispatchedTasksTotal.WithLabelValues(string(KindCooperative)).Inc()

	sess.active[initiator.IP] = &activeTask{TaskID: resp.TaskID, NodeIP: initiator.IP, Addr: initiator.Addr(), LocalDir: nodeDir}

	d.monitor(ctx, sess)
	d.finish(sess)
	return sess, nil
}

// monitor runs the poll loop until the active map is empty: each pass
// sleeps PollInterval, then polls every remaining task in parallel and
// removes it once terminal, unreachable past the threshold, or results
// have been fetched.
//
// Thread safety: pollOne mutates sess.active/sess.outcomes under sess.mu;
// monitor itself only reads a snapshot of the active set per pass, taken
// under the same lock, so submissions racing with the very first pass (via
// DispatchCompetitive's fan-out) can't be lost or double-counted.
func (d *Dispatcher) monitor(ctx context.Context, sess *Session) {
	log := obslog.WithComponent("dispatch")

	for {
		sess.mu.Lock()
		pending := make([]*activeTask, 0, len(sess.active))
		for _, t := range sess.active {
			pending = append(pending, t)
		}
		sess.mu.Unlock()

		activeTasks.Set(float64(len(pending)))
		if len(pending) == 0 {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}

		// Poll every pending task concurrently; a slow or unreachable
		// node must not hold up the status check for the rest of the
		// fleet.
		var wg sync.WaitGroup
		for _, t := range pending {
			t := t
			wg.Add(1)
			go func() {
				defer wg.Done()
				d.pollOne(ctx, sess, t, log)
			}()
		}
		wg.Wait()
	}
}

// pollOne issues one /task_status request for t and applies the resulting
// transition: a transport failure increments t's consecutive-failure
// count and abandons the task past UnreachableThreshold; a terminal status
// triggers a result fetch and removes the task from the active set;
// Running leaves the task untouched for the next pass.
func (d *Dispatcher) pollOne(ctx context.Context, sess *Session, t *activeTask, log zerolog.Logger) {
	statusCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	var statusResp wire.TaskStatusResponse
	_, err := wire.GetJSONStatus(statusCtx, fmt.Sprintf("%s/task_status/%s", t.Addr, t.TaskID), &statusResp)
	if err != nil {
		sess.mu.Lock()
		t.consecutiveFails++
		fails := t.consecutiveFails
		sess.mu.Unlock()
		if fails >= d.UnreachableThreshold {
			d.remove(sess, t.NodeIP, outcomeUnreachable)
		}
		return
	}

	sess.mu.Lock()
	t.consecutiveFails = 0
	sess.mu.Unlock()

	switch statusResp.Status {
	case wire.StatusRunning:
		return
	case wire.StatusCompleted:
		d.fetchResults(ctx, t)
		d.remove(sess, t.NodeIP, outcomeCompleted)
	case wire.StatusConfigError:
		d.fetchResults(ctx, t)
		d.remove(sess, t.NodeIP, outcomeConfigError)
	case wire.StatusExecError:
		d.fetchResults(ctx, t)
		d.remove(sess, t.NodeIP, outcomeExecError)
	}
}

// fetchResults pulls t's artifact envelope and writes every returned file
// into t.LocalDir, overwriting on name collision. A fetch failure is
// logged and otherwise ignored — the task is already on its way out of the
// active set by the time this runs, so there is nothing left to retry.
func (d *Dispatcher) fetchResults(ctx context.Context, t *activeTask) {
	resultsCtx, cancel := context.WithTimeout(ctx, resultsTimeout)
	defer cancel()

	var envelope wire.ArtifactEnvelope
	_, err := wire.GetJSONStatus(resultsCtx, fmt.Sprintf("%s/get_results/%s", t.Addr, t.TaskID), &envelope)
	if err != nil {
		obslog.WithComponent("dispatch").Warn().Str("node", t.NodeIP).Err(err).Msg("result fetch failed")
		return
	}

	for _, a := range envelope.Results {
		path := filepath.Join(t.LocalDir, filepath.Base(a.Filename))
		if err := os.WriteFile(path, []byte(a.Content), 0o644); err != nil {
			obslog.WithComponent("dispatch").Warn().Str("file", path).Err(err).Msg("failed to write artifact")
		}
	}
}

// remove evicts nodeIP from the active set and records its final outcome.
func (d *Dispatcher) remove(sess *Session, nodeIP string, outcome taskOutcome) {
	sess.mu.Lock()
	delete(sess.active, nodeIP)
	sess.outcomes[nodeIP] = outcome
	sess.mu.Unlock()
	taskOutcomesTotal.WithLabelValues(string(outcome)).Inc()
}

// finish stops the session's collectl sampler and records its total
// wall-clock duration. Called once the active set has fully drained.
func (d *Dispatcher) finish(sess *Session) {
	sess.collectl.Stop()
	dispatchLatency.Observe(time.Since(sess.StartedAt).Seconds())
}
