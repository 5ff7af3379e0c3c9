package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectArtifactsReadsRegularFilesOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hpl_4_task_1.result"), []byte("output one"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "collectl.log"), []byte("metrics"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	envelope, err := collectArtifacts("task-1", dir)
	require.NoError(t, err)
	assert.Equal(t, "task-1", envelope.TaskID)
	assert.Len(t, envelope.Results, 2)

	names := map[string]string{}
	for _, r := range envelope.Results {
		names[r.Filename] = r.Content
	}
	assert.Equal(t, "output one", names["hpl_4_task_1.result"])
	assert.Equal(t, "metrics", names["collectl.log"])
}

func TestCollectArtifactsMissingDirIsEmptyNotError(t *testing.T) {
	envelope, err := collectArtifacts("task-2", filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Equal(t, "task-2", envelope.TaskID)
	assert.Empty(t, envelope.Results)
}
