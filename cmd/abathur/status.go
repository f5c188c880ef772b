// Top-level `abathur status`: the persisted aggregate queue view (counts
// by status, max dependency depth, oldest pending task), without the live
// in-process orchestrator counters `swarm status` can append.
package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odgrim/abathur-swarm/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report aggregate queue status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := queueSvc.GetQueueStatus(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			data, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		for _, status := range []string{"ready", "blocked", "running", "pending", "completed", "failed", "cancelled"} {
			fmt.Printf("%-10s %d\n", status, stats.CountByStatus[types.Status(status)])
		}
		fmt.Printf("max dependency depth: %d\n", stats.MaxDependencyDepth)
		if stats.OldestPending != nil {
			fmt.Printf("oldest pending: %s\n", stats.OldestPending.Format("2006-01-02T15:04:05Z07:00"))
		}
		return nil
	},
}
