package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hpcbench/fleet/internal/wire"
	"github.com/spf13/cobra"
)

var competitiveCmd = &cobra.Command{
	Use:   "competitive",
	Short: "Dispatch a competitive benchmark session to every registered node",
	Long: `competitive submits one independent benchmark process per node,
each running the requested number of local instances, and blocks until
every node reports a terminal status.`,
	RunE: runCompetitive,
}

func init() {
	competitiveCmd.Flags().Int("ps", 2, "process grid rows (P)")
	competitiveCmd.Flags().Int("qs", 2, "process grid columns (Q)")
	competitiveCmd.Flags().Int("n", 10000, "problem size (N)")
	competitiveCmd.Flags().Int("nb", 192, "block size (NB)")
	competitiveCmd.Flags().Int("instances", 1, "local instances per node")
}

func runCompetitive(cmd *cobra.Command, args []string) error {
	coordinatorAddr, _ := cmd.Flags().GetString("coordinator")
	ps, _ := cmd.Flags().GetInt("ps")
	qs, _ := cmd.Flags().GetInt("qs")
	n, _ := cmd.Flags().GetInt("n")
	nb, _ := cmd.Flags().GetInt("nb")
	instances, _ := cmd.Flags().GetInt("instances")

	req := wire.SubmitCompetitiveRequest{PS: ps, QS: qs, NValue: n, NB: nb, InstancesNum: instances}

	var result map[string]any
	if err := wire.PostJSON(context.Background(), coordinatorAddr+"/dispatch/competitive", req, &result); err != nil {
		return fmt.Errorf("benchctl: dispatch competitive: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
