package worker

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGatherLocalInfoFillsOSAndCPUCount(t *testing.T) {
	info := GatherLocalInfo(t.TempDir())
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.NumCPU(), info.CPUCount)
	assert.NotEmpty(t, info.Hostname)
}
