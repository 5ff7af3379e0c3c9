package worker

import (
	"os/exec"
	"sync"

	"github.com/hpcbench/fleet/internal/obslog"
)

// jobCollectl starts and stops a collectl process scoped to a single job's
// result directory, writing collectl.log alongside the job's other
// artifacts. A missing binary is non-fatal: the job proceeds without
// resource samples.
type jobCollectl struct {
	mu  sync.Mutex
	cmd *exec.Cmd
}

func (c *jobCollectl) start(logPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bin, err := exec.LookPath("collectl")
	if err != nil {
		return
	}
	cmd := exec.Command(bin, "-f", logPath)
	if err := cmd.Start(); err != nil {
		obslog.WithComponent("worker").Warn().Err(err).Msg("failed to start collectl")
		return
	}
	c.cmd = cmd
}

func (c *jobCollectl) stop() {
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
