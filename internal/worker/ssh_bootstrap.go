package worker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hpcbench/fleet/internal/obslog"
	"github.com/hpcbench/fleet/internal/sshkeys"
	"github.com/hpcbench/fleet/internal/wire"
	"github.com/rs/zerolog"
)

// BootstrapSSH fetches the coordinator's key pair and installs it under
// home/.ssh, then best-effort starts an SSH agent and adds the key. A
// cooperative MPI launch needs every worker able to SSH to every other
// worker; sharing one coordinator-minted pair gives that mesh without
// per-pair provisioning. Failure to write the keys is fatal to the caller;
// failure to start an agent is logged and ignored (cooperative jobs will
// then fail at runtime, non-cooperative jobs are unaffected).
func BootstrapSSH(ctx context.Context, coordinatorAddr, home string) error {
	log := obslog.WithComponent("ssh_bootstrap")
	sshDir := filepath.Join(home, ".ssh")

	var pubLine string
	if err := wire.GetJSON(ctx, coordinatorAddr+"/get_ssh_public_key", &pubLine); err != nil {
		return fmt.Errorf("worker: fetch ssh public key: %w", err)
	}
	var privPEM string
	if err := wire.GetJSON(ctx, coordinatorAddr+"/get_ssh_private_key", &privPEM); err != nil {
		return fmt.Errorf("worker: fetch ssh private key: %w", err)
	}

	if err := sshkeys.AppendAuthorizedKey(filepath.Join(sshDir, "authorized_keys"), pubLine); err != nil {
		return fmt.Errorf("worker: install authorized_keys: %w", err)
	}
	if err := sshkeys.WritePublicKey(filepath.Join(sshDir, "id_rsa.pub"), pubLine); err != nil {
		return fmt.Errorf("worker: install id_rsa.pub: %w", err)
	}
	if err := sshkeys.WritePrivateKey(filepath.Join(sshDir, "id_rsa"), privPEM); err != nil {
		return fmt.Errorf("worker: install id_rsa: %w", err)
	}

	startAgentBestEffort(sshDir, log)
	return nil
}

// startAgentBestEffort starts ssh-agent if SSH_AUTH_SOCK is unset, then
// adds the worker's private key to it. Both steps are advisory: neither
// failure is returned to the caller.
func startAgentBestEffort(sshDir string, log zerolog.Logger) {
	if os.Getenv("SSH_AUTH_SOCK") == "" {
		bin, err := exec.LookPath("ssh-agent")
		if err != nil {
			log.Warn().Msg("ssh-agent not found, cooperative MPI will not have agent forwarding")
			return
		}
		output, err := exec.Command(bin, "-s").Output()
		if err != nil {
			log.Warn().Err(err).Msg("failed to start ssh-agent")
			return
		}
		for k, v := range parseAgentVars(output) {
			os.Setenv(k, v)
		}
	}

	bin, err := exec.LookPath("ssh-add")
	if err != nil {
		log.Warn().Msg("ssh-add not found, skipping key registration with agent")
		return
	}
	if err := exec.Command(bin, filepath.Join(sshDir, "id_rsa")).Run(); err != nil {
		log.Warn().Err(err).Msg("ssh-add failed")
	}
}

// parseAgentVars extracts exportable shell variable assignments from
// `ssh-agent -s` output, e.g. "SSH_AUTH_SOCK=/tmp/ssh-x/agent.1; export SSH_AUTH_SOCK;".
func parseAgentVars(output []byte) map[string]string {
	vars := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := line[:eq]
		rest := line[eq+1:]
		if semi := strings.Index(rest, ";"); semi >= 0 {
			rest = rest[:semi]
		}
		vars[key] = rest
	}
	return vars
}
