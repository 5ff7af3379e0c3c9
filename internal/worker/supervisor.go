package worker

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hpcbench/fleet/internal/obslog"
	"github.com/hpcbench/fleet/internal/wire"
	"golang.org/x/sync/errgroup"
)

// Supervisor owns the admission slot, the job table, and the filesystem
// roots a job's working and result directories are created under. It is
// the only thing in this package that spawns child processes.
//
// Concurrency model:
//   - SubmitCompetitive/SubmitCooperative are safe to call concurrently;
//     Admission.TrySubmit is the single gate that prevents two jobs from
//     running at once on a worker with only one admission slot
//   - the actual run (runCompetitive/runCooperative) happens on its own
//     goroutine, detached from the HTTP request that submitted it — the
//     submit handler returns as soon as the job is admitted and recorded
//   - finish is the only place the admission slot is released; it is
//     deferred at the top of runCompetitive/runCooperative, which return
//     through job.finish on every path instead of panicking
//
// Memory usage: one Supervisor per worker process; WorkRoot/ResultsRoot
// are plain strings, not held open as file descriptors, so there is no
// per-job resource leak tied to the Supervisor itself.
type Supervisor struct {
	Admission *Admission
	Table     *JobTable

	// WorkRoot is the parent of every job's working directory tree,
	// "/tmp" by default.
	WorkRoot string
	// ResultsRoot is "<results_root>", "../results" relative to the
	// worker's working directory by default.
	ResultsRoot string
}

// NewSupervisor returns a Supervisor rooted at workRoot/resultsRoot.
//
// Parameters:
//   - admission: the single-slot gate SubmitCompetitive/SubmitCooperative
//     check before admitting a new job
//   - table: the job table status lookups and result fetches read from
//   - workRoot: parent directory for per-job scratch working directories
//   - resultsRoot: parent directory for per-job result directories
//
// Returns: a Supervisor ready to accept submissions.
func NewSupervisor(admission *Admission, table *JobTable, workRoot, resultsRoot string) *Supervisor {
	return &Supervisor{Admission: admission, Table: table, WorkRoot: workRoot, ResultsRoot: resultsRoot}
}

// newTaskID mints a 128-bit random task_id rendered as lowercase hex.
func newTaskID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// SubmitCompetitive admits and launches a competitive job: InstancesNum
// independent xhpl processes, each pinned to its own NUMA socket when
// numactl is available, each racing the others to its own result file.
//
// Behavior:
//   - request validation happens before the admission check, so a
//     malformed request never consumes the single admission slot
//   - on admission, a task_id is minted and the job is recorded in Table
//     before the run goroutine starts, so a status poll landing
//     immediately after the HTTP response always finds the job
//   - the actual instances run on a detached goroutine; this method
//     returns as soon as the job is admitted, not when it finishes
//
// Parameters:
//   - req: PS/QS/N/NB plus InstancesNum, the number of independent xhpl
//     copies to race
//
// Returns:
//   - taskID: the minted id, valid only when ok is true
//   - ok: false if the worker's single admission slot was already
//     occupied — the caller should treat this as "busy", not an error
//   - err: non-nil only when req fails validation
func (s *Supervisor) SubmitCompetitive(req wire.SubmitCompetitiveRequest) (taskID string, ok bool, err error) {
	if err := req.Validate(); err != nil {
		return "", false, err
	}

	taskID = newTaskID()
	if !s.Admission.TrySubmit(taskID) {
		busyRejectionsTotal.Inc()
		return "", false, nil
	}

	resultDir := filepath.Join(s.ResultsRoot, taskID)
	job := newJob(taskID, KindCompetitive, Params{
		PS: req.PS, QS: req.QS, NValue: req.NValue, NB: req.NB, InstancesNum: req.InstancesNum,
	}, filepath.Join(s.WorkRoot, "competitive_instance", taskID), resultDir)
	s.Table.Put(job)

	go s.runCompetitive(job)
	return taskID, true, nil
}

// SubmitCooperative admits and launches a cooperative job: a single
// mpirun invocation spanning every node named in req.NodeSlots, run only
// on the node chosen as initiator (this worker, when called).
//
// Behavior: same admission/recording contract as SubmitCompetitive —
// validate first, admit second, record in Table before the run goroutine
// starts, return without waiting for the run to finish.
//
// Parameters:
//   - req: PS/QS/N/NB plus NodeSlots, the per-node process count map
//     used to build the mpirun hostfile
//
// Returns: same as SubmitCompetitive.
func (s *Supervisor) SubmitCooperative(req wire.SubmitCooperativeRequest) (taskID string, ok bool, err error) {
	if err := req.Validate(); err != nil {
		return "", false, err
	}

	taskID = newTaskID()
	if !s.Admission.TrySubmit(taskID) {
		busyRejectionsTotal.Inc()
		return "", false, nil
	}

	resultDir := filepath.Join(s.ResultsRoot, taskID)
	job := newJob(taskID, KindCooperative, Params{
		PS: req.PS, QS: req.QS, NValue: req.NValue, NB: req.NB, NodeSlots: req.NodeSlots,
	}, filepath.Join(s.WorkRoot, "cooperative_instance", taskID), resultDir)
	s.Table.Put(job)

	go s.runCooperative(job)
	return taskID, true, nil
}

// runCompetitive drives one competitive job end to end: prepare each
// instance's working directory and input deck, run all instances
// concurrently pinned to distinct NUMA sockets, and record a terminal
// status. Every return path goes through job.finish, so the admission
// slot (released in s.finish, deferred at entry) is always freed exactly
// once regardless of which step failed.
func (s *Supervisor) runCompetitive(job *Job) {
	log := obslog.WithTaskID(job.TaskID)
	defer s.finish(job)

	if err := os.MkdirAll(job.ResultDir, 0o755); err != nil {
		log.Error().Err(err).Msg("failed to create result directory")
		job.finish(wire.StatusConfigError)
		return
	}

	collectl := &jobCollectl{}
	collectl.start(filepath.Join(job.ResultDir, "collectl.log"))
	defer collectl.stop()

	instances := job.Params.InstancesNum
	instanceDirs := make([]string, instances)
	for i := 1; i <= instances; i++ {
		instanceID := fmt.Sprintf("%s_%d", job.TaskID, i)
		dir := filepath.Join(job.WorkDir, instanceID)
		if err := freshDir(dir); err != nil {
			log.Error().Err(err).Msg("failed to prepare instance working directory")
			job.finish(wire.StatusConfigError)
			return
		}
		if err := writeInputDeck(filepath.Join(dir, "HPL.dat"), job.Params); err != nil {
			log.Error().Err(err).Msg("failed to write input deck")
			job.finish(wire.StatusConfigError)
			return
		}
		instanceDirs[i-1] = dir
	}

	processCount := job.Params.PS * job.Params.QS

	// Instances race independently; errgroup collects the first non-nil
	// error but every instance still runs to completion (runPinned
	// doesn't take a cancellable context) before g.Wait returns.
	g := new(errgroup.Group)
	for i, dir := range instanceDirs {
		i, dir := i, dir
		g.Go(func() error {
			instanceID := fmt.Sprintf("%s_%d", job.TaskID, i+1)
			outPath := filepath.Join(job.ResultDir, fmt.Sprintf("hpl_%d_%s.result", processCount, instanceID))
			if err := runPinned(dir, outPath, i, "xhpl"); err != nil {
				childProcessesTotal.WithLabelValues("failed").Inc()
				return err
			}
			childProcessesTotal.WithLabelValues("ok").Inc()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("one or more competitive instances exited non-zero")
		job.finish(wire.StatusExecError)
		return
	}
	job.finish(wire.StatusCompleted)
}

// runCooperative drives one cooperative job: prepare a single working
// directory and input deck, write the mpirun hostfile from NodeSlots, and
// run one mpirun invocation spanning every slot. Unlike runCompetitive
// there is no fan-out here — mpirun itself distributes ranks across the
// hostfile's nodes over SSH, using the key material BootstrapSSH set up
// at worker startup.
func (s *Supervisor) runCooperative(job *Job) {
	log := obslog.WithTaskID(job.TaskID)
	defer s.finish(job)

	if err := os.MkdirAll(job.ResultDir, 0o755); err != nil {
		log.Error().Err(err).Msg("failed to create result directory")
		job.finish(wire.StatusConfigError)
		return
	}

	collectl := &jobCollectl{}
	collectl.start(filepath.Join(job.ResultDir, "collectl.log"))
	defer collectl.stop()

	instanceID := job.TaskID + "_1"
	dir := filepath.Join(job.WorkDir, instanceID)
	if err := freshDir(dir); err != nil {
		log.Error().Err(err).Msg("failed to prepare working directory")
		job.finish(wire.StatusConfigError)
		return
	}
	if err := writeInputDeck(filepath.Join(dir, "HPL.dat"), job.Params); err != nil {
		log.Error().Err(err).Msg("failed to write input deck")
		job.finish(wire.StatusConfigError)
		return
	}

	hostfilePath := filepath.Join(job.ResultDir, "hostfile.txt")
	if err := writeHostfile(hostfilePath, job.Params.NodeSlots); err != nil {
		log.Error().Err(err).Msg("failed to write hostfile")
		job.finish(wire.StatusConfigError)
		return
	}

	np := totalSlots(job.Params.NodeSlots)
	processCount := job.Params.PS * job.Params.QS
	outPath := filepath.Join(job.ResultDir, fmt.Sprintf("hpl_%d_%s.result", processCount, instanceID))

	bin, err := exec.LookPath("mpirun")
	if err != nil {
		log.Error().Err(err).Msg("mpirun not found")
		job.finish(wire.StatusConfigError)
		return
	}

	out, err := os.Create(outPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to create output file")
		job.finish(wire.StatusConfigError)
		return
	}
	defer out.Close()

	cmd := exec.Command(bin,
		"--hostfile", hostfilePath,
		"-np", fmt.Sprintf("%d", np),
		"-x", "UserKnownHostsFile=/dev/null",
		"xhpl",
	)
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Env = append(os.Environ(), "StrictHostKeyChecking=no")

	if err := cmd.Run(); err != nil {
		log.Warn().Err(err).Msg("cooperative mpirun exited non-zero")
		childProcessesTotal.WithLabelValues("failed").Inc()
		job.finish(wire.StatusExecError)
		return
	}
	childProcessesTotal.WithLabelValues("ok").Inc()
	job.finish(wire.StatusCompleted)
}

// finish releases the admission slot and records terminal metrics for
// job. Called exactly once per job, deferred at the top of
// runCompetitive/runCooperative, so it runs regardless of which step
// inside the run failed.
func (s *Supervisor) finish(job *Job) {
	s.Admission.Clear(job.TaskID)
	jobsTotal.WithLabelValues(string(job.Status()), string(job.Kind)).Inc()
	jobDuration.WithLabelValues(string(job.Kind)).Observe(job.Duration().Seconds())
	os.RemoveAll(job.WorkDir)
}

// freshDir removes dir if present, then recreates it empty.
func freshDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("worker: clear working directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("worker: create working directory %s: %w", dir, err)
	}
	return nil
}

// runPinned runs bin inside dir with stdout/stderr redirected to outPath,
// bound to NUMA node index (CPU and memory) via numactl when it is
// available. index is not wrapped to the number of nodes present.
// Pinning is best-effort: a missing numactl just runs the binary directly.
func runPinned(dir, outPath string, index int, bin string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("worker: create output file %s: %w", outPath, err)
	}
	defer out.Close()

	var cmd *exec.Cmd
	if numactl, err := exec.LookPath("numactl"); err == nil {
		cmd = exec.Command(numactl, fmt.Sprintf("--cpunodebind=%d", index), fmt.Sprintf("--membind=%d", index), bin)
	} else if path, err := exec.LookPath(bin); err == nil {
		cmd = exec.Command(path)
	} else {
		return fmt.Errorf("worker: %s not found in PATH", bin)
	}
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out
	return cmd.Run()
}
