package coordinator

import (
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/hpcbench/fleet/internal/obslog"
)

// CollectlRunner starts and stops a single local collectl process writing
// into a session's result root, mirroring the master-side collectl sampling
// the dispatch session runs alongside each worker's own collectl instance.
// Failure to find the collectl binary is non-fatal: the dispatch session
// proceeds without local samples (collectl's numeric output is explicitly
// out of scope for correctness here).
type CollectlRunner struct {
	mu  sync.Mutex
	cmd *exec.Cmd
}

// Start launches `collectl -f <resultRoot>/master_collectl.log` in the
// background. A missing binary only logs a warning.
func (c *CollectlRunner) Start(resultRoot string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bin, err := exec.LookPath("collectl")
	if err != nil {
		obslog.WithComponent("collectl").Warn().Msg("collectl binary not found, skipping local sampling")
		return
	}

	logPath := filepath.Join(resultRoot, "master_collectl.log")
	cmd := exec.Command(bin, "-f", logPath)
	if err := cmd.Start(); err != nil {
		obslog.WithComponent("collectl").Warn().Err(err).Msg("failed to start collectl")
		return
	}
	c.cmd = cmd
}

// Stop terminates the collectl process started by Start, if any. Safe to
// call even if Start never launched a process.
func (c *CollectlRunner) Stop() {
	c.mu.Lock()
	cmd := c.cmd
	c.cmd = nil
	c.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
}
