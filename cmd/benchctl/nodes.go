package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hpcbench/fleet/internal/wire"
	"github.com/spf13/cobra"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List workers registered with the coordinator",
	RunE:  runNodes,
}

func runNodes(cmd *cobra.Command, args []string) error {
	coordinatorAddr, _ := cmd.Flags().GetString("coordinator")

	var nodes []wire.WorkerInfo
	if err := wire.GetJSON(context.Background(), coordinatorAddr+"/nodes", &nodes); err != nil {
		return fmt.Errorf("benchctl: list nodes: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(nodes)
}
