package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteHostfileSortedByIP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostfile.txt")
	err := writeHostfile(path, map[string]int{
		"10.0.0.12": 4,
		"10.0.0.11": 4,
	})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.11 slots=4\n10.0.0.12 slots=4\n", string(content))
}

func TestTotalSlotsSums(t *testing.T) {
	assert.Equal(t, 8, totalSlots(map[string]int{"a": 4, "b": 4}))
	assert.Equal(t, 0, totalSlots(nil))
}
