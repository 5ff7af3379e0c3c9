package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hpcbench/fleet/internal/coordinator"
	"github.com/hpcbench/fleet/internal/wire"
	"github.com/spf13/cobra"
)

var cooperativeCmd = &cobra.Command{
	Use:   "cooperative",
	Short: "Dispatch a single MPI job spanning every registered node",
	Long: `cooperative submits one MPI job to the first-registered node, with
a hostfile built from every registered node at the requested per-node slot
count, and blocks until the job reports a terminal status.`,
	RunE: runCooperative,
}

func init() {
	cooperativeCmd.Flags().Int("ps", 2, "process grid rows (P)")
	cooperativeCmd.Flags().Int("qs", 2, "process grid columns (Q)")
	cooperativeCmd.Flags().Int("n", 10000, "problem size (N)")
	cooperativeCmd.Flags().Int("nb", 192, "block size (NB)")
	cooperativeCmd.Flags().Int("slots-per-node", 4, "MPI slots to allocate per registered node")
}

func runCooperative(cmd *cobra.Command, args []string) error {
	coordinatorAddr, _ := cmd.Flags().GetString("coordinator")
	ps, _ := cmd.Flags().GetInt("ps")
	qs, _ := cmd.Flags().GetInt("qs")
	n, _ := cmd.Flags().GetInt("n")
	nb, _ := cmd.Flags().GetInt("nb")
	slots, _ := cmd.Flags().GetInt("slots-per-node")

	req := coordinator.CooperativeRequest{PS: ps, QS: qs, NValue: n, NB: nb, SlotsPerNode: slots}

	var result map[string]any
	if err := wire.PostJSON(context.Background(), coordinatorAddr+"/dispatch/cooperative", req, &result); err != nil {
		return fmt.Errorf("benchctl: dispatch cooperative: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
