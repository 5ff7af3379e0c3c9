package worker

import "sync"

// Admission is the worker's single-slot gate: at most one non-terminal job
// at a time. TrySubmit and Clear are the only mutations; all reads and
// writes of the occupying task_id happen under the same mutex so a client
// that received 200 from submit, then observed a terminal status, can
// resubmit immediately with no race.
type Admission struct {
	mu      sync.Mutex
	current string // task_id of the active job, "" if the slot is free
}

// NewAdmission returns a free admission slot.
func NewAdmission() *Admission {
	return &Admission{}
}

// TrySubmit occupies the slot with taskID if it is free, reporting whether
// it succeeded. On success the caller owns the slot until Clear.
func (a *Admission) TrySubmit(taskID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != "" {
		return false
	}
	a.current = taskID
	currentJobRunning.Set(1)
	return true
}

// Clear frees the slot if it is currently held by taskID. Clearing a slot
// held by a different task_id (or an already-free slot) is a no-op — the
// terminal transition that triggers Clear only ever names the job it
// belongs to.
func (a *Admission) Clear(taskID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == taskID {
		a.current = ""
		currentJobRunning.Set(0)
	}
}

// Current returns the task_id occupying the slot, or "" if free.
func (a *Admission) Current() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}
