// Package worker implements the job-execution side of the control plane: a
// single-slot admission gate, a job table that never evicts entries for
// the life of the process, a process supervisor for competitive and
// cooperative benchmark runs, and the thin HTTP adapter in front of them.
package worker

import (
	"sync"
	"time"

	"github.com/hpcbench/fleet/internal/wire"
)

// JobKind distinguishes how a job's processes were launched.
type JobKind string

const (
	KindCompetitive JobKind = "competitive"
	KindCooperative JobKind = "cooperative"
)

// Params carries the union of the two submission shapes a job can be built
// from. NodeSlots is nil for a competitive job.
type Params struct {
	PS, QS, NValue, NB, InstancesNum int
	NodeSlots                        map[string]int
}

// Job is one worker-side benchmark run. Entries are never removed from the
// job table for the life of the process — a restart starts with an empty
// table, but nothing within a running process evicts a job once created.
//
// Status transitions take the Job's own mutex, not Admission's. The
// terminal transition and the release of the admission slot are two
// separate steps: Supervisor.finish releases the slot after the job has
// already reached its terminal status.
type Job struct {
	TaskID    string
	Kind      JobKind
	Params    Params
	WorkDir   string
	ResultDir string

	mu        sync.Mutex
	status    wire.Status
	startedAt time.Time
	endedAt   time.Time
}

// newJob constructs a Job that is already Running, with its start time set
// to now; a job is admitted straight into Running, before its working
// directory or input deck exists.
func newJob(taskID string, kind JobKind, params Params, workDir, resultDir string) *Job {
	return &Job{
		TaskID:    taskID,
		Kind:      kind,
		Params:    params,
		WorkDir:   workDir,
		ResultDir: resultDir,
		status:    wire.StatusRunning,
		startedAt: time.Now(),
	}
}

// Status returns the job's current externally observable status.
func (j *Job) Status() wire.Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// finish transitions the job to a terminal status. Calling finish on an
// already-terminal job is a no-op; the first caller wins.
func (j *Job) finish(status wire.Status) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = status
	j.endedAt = time.Now()
}

// Duration returns the elapsed time from start to end. If the job has not
// ended yet, it measures up to now.
func (j *Job) Duration() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.endedAt.IsZero() {
		return time.Since(j.startedAt)
	}
	return j.endedAt.Sub(j.startedAt)
}
