package worker

import (
	"testing"

	"github.com/hpcbench/fleet/internal/wire"
	"github.com/stretchr/testify/assert"
)

func TestJobTablePutGet(t *testing.T) {
	table := NewJobTable()
	job := newJob("abc123", KindCompetitive, Params{}, "/tmp/work", "/tmp/results")
	table.Put(job)

	got, ok := table.Get("abc123")
	assert.True(t, ok)
	assert.Same(t, job, got)
	assert.Equal(t, 1, table.Len())
}

func TestJobTableGetMissing(t *testing.T) {
	table := NewJobTable()
	_, ok := table.Get("nope")
	assert.False(t, ok)
}

func TestJobStatusStartsRunningAndFinishIsOneShot(t *testing.T) {
	job := newJob("abc123", KindCompetitive, Params{}, "/tmp/work", "/tmp/results")
	assert.Equal(t, wire.StatusRunning, job.Status())

	job.finish(wire.StatusCompleted)
	assert.Equal(t, wire.StatusCompleted, job.Status())

	job.finish(wire.StatusExecError)
	assert.Equal(t, wire.StatusCompleted, job.Status(), "first terminal transition wins")
}
