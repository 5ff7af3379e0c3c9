package worker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hpcbench/fleet/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitCompetitiveValidatesParams(t *testing.T) {
	sup := NewSupervisor(NewAdmission(), NewJobTable(), t.TempDir(), t.TempDir())
	_, _, err := sup.SubmitCompetitive(wire.SubmitCompetitiveRequest{PS: 0, QS: 2, NValue: 1000, NB: 192, InstancesNum: 1})
	assert.Error(t, err)
}

func TestSubmitCooperativeValidatesParams(t *testing.T) {
	sup := NewSupervisor(NewAdmission(), NewJobTable(), t.TempDir(), t.TempDir())
	_, _, err := sup.SubmitCooperative(wire.SubmitCooperativeRequest{PS: 2, QS: 2, NValue: 0, NB: 192})
	assert.Error(t, err)
}

func TestSubmitCompetitiveSecondCallWhileBusyIsRejected(t *testing.T) {
	sup := NewSupervisor(NewAdmission(), NewJobTable(), t.TempDir(), t.TempDir())
	req := wire.SubmitCompetitiveRequest{PS: 2, QS: 2, NValue: 1000, NB: 192, InstancesNum: 1}

	taskID, admitted, err := sup.SubmitCompetitive(req)
	require.NoError(t, err)
	require.True(t, admitted)
	require.NotEmpty(t, taskID)

	_, admitted2, err := sup.SubmitCompetitive(req)
	require.NoError(t, err)
	assert.False(t, admitted2)
}

func TestSubmitCompetitiveReachesTerminalStatusWithoutXHPL(t *testing.T) {
	table := NewJobTable()
	sup := NewSupervisor(NewAdmission(), table, t.TempDir(), t.TempDir())
	req := wire.SubmitCompetitiveRequest{PS: 1, QS: 1, NValue: 1000, NB: 192, InstancesNum: 1}

	taskID, admitted, err := sup.SubmitCompetitive(req)
	require.NoError(t, err)
	require.True(t, admitted)

	var job *Job
	for i := 0; i < 100; i++ {
		j, ok := table.Get(taskID)
		require.True(t, ok)
		if j.Status().Terminal() {
			job = j
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NotNil(t, job, "job did not reach a terminal status")
	assert.Equal(t, "", sup.Admission.Current())
}

func TestFreshDirRecreatesEmpty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.txt"), []byte("x"), 0o644))

	require.NoError(t, freshDir(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
