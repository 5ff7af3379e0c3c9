package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hpcbench/fleet/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWorker is an httptest-backed double of a worker process: it accepts
// one submission and always reports the same terminal status, just enough
// to exercise the monitor loop without a real subprocess.
type fakeWorker struct {
	srv       *httptest.Server
	taskID    string
	final     wire.Status
	submitted atomic.Bool
}

func newFakeWorker(taskID string, final wire.Status) *fakeWorker {
	fw := &fakeWorker{taskID: taskID, final: final}
	mux := http.NewServeMux()
	mux.HandleFunc("/submit_competitive_benchmark", fw.handleSubmit)
	mux.HandleFunc("/submit_cooperative_benchmark", fw.handleSubmit)
	mux.HandleFunc("/task_status/"+taskID, fw.handleStatus)
	mux.HandleFunc("/get_results/"+taskID, fw.handleResults)
	fw.srv = httptest.NewServer(mux)
	return fw
}

func (fw *fakeWorker) handleSubmit(w http.ResponseWriter, r *http.Request) {
	fw.submitted.Store(true)
	_ = json.NewEncoder(w).Encode(wire.SubmitResponse{TaskID: fw.taskID})
}

func (fw *fakeWorker) handleStatus(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(wire.TaskStatusResponse{TaskID: fw.taskID, Status: fw.final})
}

func (fw *fakeWorker) handleResults(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(wire.ArtifactEnvelope{
		TaskID: fw.taskID,
		Results: []wire.Artifact{
			{Filename: "hpl_4_1.result", Content: "ok"},
		},
	})
}

func (fw *fakeWorker) ipPort(t *testing.T) (string, int) {
	t.Helper()
	u, err := url.Parse(fw.srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDispatchCompetitiveHappyPath(t *testing.T) {
	w1 := newFakeWorker("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", wire.StatusCompleted)
	defer w1.srv.Close()

	reg := NewRegistry()
	host, port := w1.ipPort(t)
	reg.Register(host, wire.RegisterRequest{Port: port})

	d := NewDispatcher(reg, t.TempDir())
	sess, err := d.DispatchCompetitive(testContext(t), wire.SubmitCompetitiveRequest{
		PS: 2, QS: 2, NValue: 1000, NB: 192, InstancesNum: 1,
	})
	require.NoError(t, err)
	assert.True(t, w1.submitted.Load())
	assert.Equal(t, outcomeCompleted, sess.outcomes[host])
	assert.Empty(t, sess.active)
}

func TestDispatchCompetitiveRejectsNonPositiveParams(t *testing.T) {
	d := NewDispatcher(NewRegistry(), t.TempDir())
	_, err := d.DispatchCompetitive(testContext(t), wire.SubmitCompetitiveRequest{PS: 0, QS: 1, NValue: 1, NB: 1, InstancesNum: 1})
	assert.True(t, wire.IsInvalidParams(err))
}

func TestDispatchCooperativeSubmitsOnlyToInitiator(t *testing.T) {
	w1 := newFakeWorker("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", wire.StatusCompleted)
	defer w1.srv.Close()
	w2 := newFakeWorker("dddddddddddddddddddddddddddddddd", wire.StatusCompleted)
	defer w2.srv.Close()

	reg := NewRegistry()
	h1, p1 := w1.ipPort(t)
	h2, p2 := w2.ipPort(t)
	reg.Register(h1, wire.RegisterRequest{Port: p1})
	reg.Register(h2, wire.RegisterRequest{Port: p2})

	d := NewDispatcher(reg, t.TempDir())
	_, err := d.DispatchCooperative(testContext(t), CooperativeRequest{PS: 2, QS: 4, NValue: 20000, NB: 192, SlotsPerNode: 4})
	require.NoError(t, err)

	assert.True(t, w1.submitted.Load())
	assert.False(t, w2.submitted.Load())
}
