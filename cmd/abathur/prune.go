// Bulk task pruning. Adapted from the teacher's cmd/bd/purge.go.
package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odgrim/abathur-swarm/internal/types"
	"github.com/odgrim/abathur-swarm/internal/validation"
)

func init() {
	taskCmd.AddCommand(taskPruneCmd)

	taskPruneCmd.Flags().String("older-than", "", "prune terminal tasks older than this (e.g. 30d, 4w, 6m, 1y)")
	taskPruneCmd.Flags().String("before", "", "prune terminal tasks completed (or, if never completed, submitted) on or before this date (YYYY-MM-DD)")
	taskPruneCmd.Flags().StringSlice("status", nil, "prune tasks in these terminal statuses (cannot be combined with ids or time filters)")
	taskPruneCmd.Flags().Int("limit", 0, "cap the number of tasks pruned in one run (0 = no limit)")
	taskPruneCmd.Flags().Bool("force", false, "skip the confirmation normally required for a non-dry-run prune")
	taskPruneCmd.Flags().Bool("dry-run", false, "report what would be pruned without deleting anything")
	taskPruneCmd.Flags().String("vacuum", string(types.VacuumConditional), "space reclamation policy: always|conditional|never")
	taskPruneCmd.Flags().Bool("recursive", false, "also prune children of pruned parents")
	taskPruneCmd.Flags().Int("preview-depth", 0, "with --recursive --dry-run, how many child generations to list individually")
}

var taskPruneCmd = &cobra.Command{
	Use:   "prune [ids...]",
	Short: "Bulk-delete terminal tasks matching selection criteria",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		CheckReadonly("task prune")

		olderThan, _ := cmd.Flags().GetString("older-than")
		before, _ := cmd.Flags().GetString("before")
		statusFlags, _ := cmd.Flags().GetStringSlice("status")
		limit, _ := cmd.Flags().GetInt("limit")
		force, _ := cmd.Flags().GetBool("force")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		vacuumFlag, _ := cmd.Flags().GetString("vacuum")
		recursive, _ := cmd.Flags().GetBool("recursive")
		previewDepth, _ := cmd.Flags().GetInt("preview-depth")

		if !dryRun && !force && len(args) == 0 {
			return fmt.Errorf("prune without --dry-run requires --force to confirm a destructive bulk delete")
		}

		filters := types.PruneFilters{
			IDs:          args,
			DryRun:       dryRun,
			VacuumMode:   types.VacuumMode(vacuumFlag),
			Recursive:    recursive,
			PreviewDepth: previewDepth,
		}

		if olderThan != "" {
			days, err := validation.ParseOlderThanDays(olderThan)
			if err != nil {
				return err
			}
			filters.OlderThanDays = &days
		}
		if before != "" {
			t, err := time.Parse("2006-01-02", before)
			if err != nil {
				return fmt.Errorf("--before: %w", err)
			}
			filters.BeforeDate = &t
		}
		for _, s := range statusFlags {
			status, err := validation.Status(s)
			if err != nil {
				return err
			}
			filters.Statuses = append(filters.Statuses, status)
		}
		if limit > 0 {
			filters.Limit = &limit
		}

		result, err := store.PruneTasks(rootCtx, filters, time.Now().UTC())
		if err != nil {
			return err
		}
		return printPruneResult(result)
	},
}

func printPruneResult(result *types.PruneResult) error {
	if jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	verb := "pruned"
	if result.DryRun {
		verb = "would prune"
	}
	fmt.Printf("%s %d task(s), %d dependency edge(s)\n", verb, result.DeletedTasks, result.DeletedDependencies)
	for status, count := range result.BreakdownByStatus {
		fmt.Printf("  %s: %d\n", status, count)
	}
	if result.VacuumAutoSkipped {
		fmt.Println(mutedStyle.Render("  vacuum skipped: 10,000 or more tasks deleted, above the conditional auto-vacuum ceiling"))
	}
	if len(result.RefusedParentIDs) > 0 {
		fmt.Println(warnStyle.Render(fmt.Sprintf("  refused %d parent(s) whose non-terminal children were also selected", len(result.RefusedParentIDs))))
	}
	return nil
}
