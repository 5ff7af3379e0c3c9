package worker

import "sync"

// JobTable is the worker's job-by-task_id index, a mutex-guarded map:
// one writer at a time, many readers allowed, and entries are never
// deleted — a job stays queryable via task_status/get_results for the
// rest of the process's life once it exists.
type JobTable struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobTable returns an empty table.
func NewJobTable() *JobTable {
	return &JobTable{jobs: make(map[string]*Job)}
}

// Put inserts job, keyed by its TaskID. Task IDs are minted fresh per job
// (128-bit random), so collisions are not a case this handles specially.
func (t *JobTable) Put(job *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[job.TaskID] = job
}

// Get returns the job for taskID, or nil, ok=false if it was never created.
func (t *JobTable) Get(taskID string) (*Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[taskID]
	return j, ok
}

// Len reports the number of jobs ever created on this worker.
func (t *JobTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs)
}
