// Task commands: submit, list, show, update, retry, cancel, check-stale.
// Adapted from the teacher's cmd/bd/create.go, list.go, show.go, update.go.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/odgrim/abathur-swarm/internal/queue"
	"github.com/odgrim/abathur-swarm/internal/store/sqlite"
	"github.com/odgrim/abathur-swarm/internal/types"
	"github.com/odgrim/abathur-swarm/internal/validation"
)

// resolveTaskID resolves idOrPrefix, printing the full set of matching
// ids to stderr when the prefix is ambiguous so the caller can narrow it.
func resolveTaskID(idOrPrefix string) (string, error) {
	id, err := store.ResolveTaskID(rootCtx, idOrPrefix)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, sqlite.ErrAmbiguous) {
		if candidates, listErr := store.ListTaskIDsByPrefix(rootCtx, idOrPrefix); listErr == nil {
			fmt.Fprintf(os.Stderr, "prefix %q matches:\n", idOrPrefix)
			for _, c := range candidates {
				fmt.Fprintf(os.Stderr, "  %s\n", c)
			}
		}
	}
	return "", err
}

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "tasks",
	Short:   "Submit, inspect, and manage queued tasks",
}

func init() {
	taskCmd.AddCommand(taskSubmitCmd, taskListCmd, taskShowCmd, taskUpdateCmd,
		taskRetryCmd, taskCancelCmd, taskCheckStaleCmd)

	taskSubmitCmd.Flags().String("summary", "", "one-line summary (auto-derived from prompt if omitted)")
	taskSubmitCmd.Flags().String("source", string(types.SourceHuman), "who submitted the task: "+sourcesHelp())
	taskSubmitCmd.Flags().String("agent-type", types.DefaultAgentType, "agent type that should execute this task")
	taskSubmitCmd.Flags().String("input-json", "", "opaque JSON payload passed to the executor, given inline")
	taskSubmitCmd.Flags().String("input-file", "", "path to a file holding the JSON payload passed to the executor")
	taskSubmitCmd.MarkFlagsMutuallyExclusive("input-json", "input-file")
	taskSubmitCmd.Flags().Int("priority", types.DefaultBasePriority, "base priority, 0-10")
	taskSubmitCmd.Flags().String("deadline", "", "deadline as RFC3339, YYYY-MM-DD, or a natural-language phrase (\"in 2 days\")")
	taskSubmitCmd.Flags().Int("estimated-duration", 0, "estimated duration in seconds")
	taskSubmitCmd.Flags().Int("max-retries", types.DefaultMaxRetries, "maximum retry attempts")
	taskSubmitCmd.Flags().Int("max-timeout", types.DefaultMaxExecutionTimeoutSeconds, "execution timeout in seconds before a running task is considered stale")
	taskSubmitCmd.Flags().StringSlice("requires", nil, "prerequisite task ids (repeatable)")
	taskSubmitCmd.Flags().String("parent", "", "parent task id")
	taskSubmitCmd.Flags().String("session-id", "", "session id this task belongs to")
	taskSubmitCmd.Flags().String("feature-branch", "", "feature branch name")
	taskSubmitCmd.Flags().String("task-branch", "", "task branch name")
	taskSubmitCmd.Flags().String("worktree-path", "", "worktree path")

	taskListCmd.Flags().String("status", "", "filter by status")
	taskListCmd.Flags().String("exclude-status", "", "exclude a status")
	taskListCmd.Flags().String("source", "", "filter by source")
	taskListCmd.Flags().String("agent-type", "", "filter by agent type")
	taskListCmd.Flags().String("feature-branch", "", "filter by feature branch")
	taskListCmd.Flags().Int("limit", 0, "limit the number of rows returned (0 = no limit)")
	taskListCmd.Flags().Bool("tree", false, "render each matched task as a prerequisite tree instead of a flat list")
	taskListCmd.Flags().Bool("lineage", false, "render each matched task's parent/child lineage instead of a flat list")
	taskListCmd.Flags().Bool("unicode", true, "use box-drawing connectors in tree/lineage output")
	taskListCmd.Flags().Bool("ascii", false, "use plain ASCII connectors in tree/lineage output")
	taskListCmd.MarkFlagsMutuallyExclusive("unicode", "ascii")

	taskShowCmd.Flags().Bool("tree", false, "render the prerequisite tree rooted at this task")
	taskShowCmd.Flags().Bool("unicode", true, "use box-drawing connectors in tree output")
	taskShowCmd.Flags().Bool("ascii", false, "use plain ASCII connectors in tree output")
	taskShowCmd.MarkFlagsMutuallyExclusive("unicode", "ascii")

	taskUpdateCmd.Flags().String("summary", "", "new summary")
	taskUpdateCmd.Flags().Int("priority", 0, "new base priority")
	taskUpdateCmd.Flags().Bool("set-priority", false, "apply --priority even if 0")
	taskUpdateCmd.Flags().String("status", "", "new status (priority/agent-type changes require the task to be PENDING or READY before and after)")
	taskUpdateCmd.Flags().String("agent-type", "", "new agent type")
	taskUpdateCmd.Flags().String("result-data", "", "result payload to attach")
	taskUpdateCmd.Flags().Bool("dry-run", false, "validate the update without writing it")

	taskCancelCmd.Flags().Bool("force", false, "cancel even if the task is already running")
}

func sourcesHelp() string {
	parts := make([]string, len(types.AllSources))
	for i, s := range types.AllSources {
		parts[i] = string(s)
	}
	return strings.Join(parts, "|")
}

var taskSubmitCmd = &cobra.Command{
	Use:   "submit <prompt>",
	Short: "Submit a new task to the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		CheckReadonly("task submit")

		summary, _ := cmd.Flags().GetString("summary")
		sourceFlag, _ := cmd.Flags().GetString("source")
		agentType, _ := cmd.Flags().GetString("agent-type")
		inputJSON, _ := cmd.Flags().GetString("input-json")
		inputFile, _ := cmd.Flags().GetString("input-file")
		priorityFlag, _ := cmd.Flags().GetInt("priority")
		deadlineFlag, _ := cmd.Flags().GetString("deadline")
		estimatedDuration, _ := cmd.Flags().GetInt("estimated-duration")
		maxRetries, _ := cmd.Flags().GetInt("max-retries")
		maxTimeout, _ := cmd.Flags().GetInt("max-timeout")
		requires, _ := cmd.Flags().GetStringSlice("requires")
		parent, _ := cmd.Flags().GetString("parent")
		sessionID, _ := cmd.Flags().GetString("session-id")
		featureBranch, _ := cmd.Flags().GetString("feature-branch")
		taskBranch, _ := cmd.Flags().GetString("task-branch")
		worktreePath, _ := cmd.Flags().GetString("worktree-path")

		source, err := validation.Source(sourceFlag)
		if err != nil {
			return err
		}
		if err := validation.BasePriority(priorityFlag); err != nil {
			return err
		}
		for _, id := range requires {
			if err := validation.TaskID(id); err != nil {
				return fmt.Errorf("--requires %q: %w", id, err)
			}
		}

		inputData := inputJSON
		if inputFile != "" {
			raw, err := os.ReadFile(inputFile)
			if err != nil {
				return fmt.Errorf("--input-file: %w", err)
			}
			inputData = string(raw)
		}

		in := queue.EnqueueInput{
			Prompt:        args[0],
			Summary:       summary,
			Source:        source,
			AgentType:     agentType,
			InputData:     inputData,
			BasePriority:  &priorityFlag,
			MaxRetries:    &maxRetries,
			Prerequisites: requires,
		}
		if deadlineFlag != "" {
			deadline, err := validation.ParseDeadline(deadlineFlag, time.Now().UTC())
			if err != nil {
				return err
			}
			in.Deadline = &deadline
		}
		if estimatedDuration > 0 {
			in.EstimatedDurationSeconds = &estimatedDuration
		}
		if maxTimeout > 0 {
			in.MaxExecutionTimeoutSeconds = &maxTimeout
		}
		if parent != "" {
			in.ParentTaskID = &parent
		}
		if sessionID != "" {
			in.SessionID = &sessionID
		}
		if featureBranch != "" {
			in.FeatureBranch = &featureBranch
		}
		if taskBranch != "" {
			in.TaskBranch = &taskBranch
		}
		if worktreePath != "" {
			in.WorktreePath = &worktreePath
		}

		task, err := queueSvc.EnqueueTask(rootCtx, in)
		if err != nil {
			return err
		}
		return printTask(task)
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks matching filters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter sqlite.ListTasksFilter

		if v, _ := cmd.Flags().GetString("status"); v != "" {
			st, err := validation.Status(v)
			if err != nil {
				return err
			}
			filter.Status = &st
		}
		if v, _ := cmd.Flags().GetString("exclude-status"); v != "" {
			st, err := validation.Status(v)
			if err != nil {
				return err
			}
			filter.ExcludeStatus = &st
		}
		if v, _ := cmd.Flags().GetString("source"); v != "" {
			src, err := validation.Source(v)
			if err != nil {
				return err
			}
			filter.Source = &src
		}
		if v, _ := cmd.Flags().GetString("agent-type"); v != "" {
			filter.AgentType = &v
		}
		if v, _ := cmd.Flags().GetString("feature-branch"); v != "" {
			filter.FeatureBranch = &v
		}
		if v, _ := cmd.Flags().GetInt("limit"); v > 0 {
			filter.Limit = &v
		}

		tasks, err := store.ListTasks(rootCtx, filter)
		if err != nil {
			return err
		}

		tree, _ := cmd.Flags().GetBool("tree")
		lineage, _ := cmd.Flags().GetBool("lineage")
		if !tree && !lineage {
			return printTaskList(tasks)
		}
		if ascii, _ := cmd.Flags().GetBool("ascii"); ascii {
			useASCIITree = true
		}
		for _, t := range tasks {
			var nodes []treeNode
			var err error
			if tree {
				nodes, err = buildPrerequisiteTree(rootCtx, t.ID)
			} else {
				nodes, err = buildLineageTree(rootCtx, t.ID)
			}
			if err != nil {
				return err
			}
			renderPrerequisiteTree(nodes)
		}
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id|prefix>",
	Short: "Show a single task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveTaskID(args[0])
		if err != nil {
			return err
		}
		tree, _ := cmd.Flags().GetBool("tree")
		if tree {
			if ascii, _ := cmd.Flags().GetBool("ascii"); ascii {
				useASCIITree = true
			}
			nodes, err := buildPrerequisiteTree(rootCtx, id)
			if err != nil {
				return err
			}
			renderPrerequisiteTree(nodes)
			return nil
		}
		task, err := store.GetTask(rootCtx, id)
		if err != nil {
			return err
		}
		return printTask(task)
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <id|prefix>",
	Short: "Update a task's mutable fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		CheckReadonly("task update")

		id, err := resolveTaskID(args[0])
		if err != nil {
			return err
		}
		task, err := store.GetTask(rootCtx, id)
		if err != nil {
			return err
		}

		restricted := task.Status != types.StatusPending && task.Status != types.StatusReady
		changingPriorityOrAgent := false

		if v, _ := cmd.Flags().GetString("summary"); v != "" {
			task.Summary = v
		}
		if setPriority, _ := cmd.Flags().GetBool("set-priority"); setPriority {
			priority, _ := cmd.Flags().GetInt("priority")
			if err := validation.BasePriority(priority); err != nil {
				return err
			}
			task.BasePriority = priority
			changingPriorityOrAgent = true
		}
		if v, _ := cmd.Flags().GetString("agent-type"); v != "" {
			task.AgentType = v
			changingPriorityOrAgent = true
		}
		if v, _ := cmd.Flags().GetString("status"); v != "" {
			newStatus, err := validation.Status(v)
			if err != nil {
				return err
			}
			task.Status = newStatus
		}
		if v, _ := cmd.Flags().GetString("result-data"); v != "" {
			task.ResultData = &v
		}

		if changingPriorityOrAgent && (restricted || (task.Status != types.StatusPending && task.Status != types.StatusReady)) {
			return fmt.Errorf("priority and agent-type may only be changed while a task is pending or ready")
		}

		task.LastUpdatedAt = time.Now().UTC()
		if err := task.Validate(); err != nil {
			return err
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if dryRun {
			return printTask(task)
		}
		if err := store.UpdateTask(rootCtx, task); err != nil {
			return err
		}
		return printTask(task)
	},
}

var taskRetryCmd = &cobra.Command{
	Use:   "retry <id|prefix>",
	Short: "Reopen a terminal task for a fresh execution attempt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		CheckReadonly("task retry")

		id, err := resolveTaskID(args[0])
		if err != nil {
			return err
		}
		task, err := queueSvc.RetryTask(rootCtx, id)
		if err != nil {
			return err
		}
		return printTask(task)
	},
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <id|prefix>",
	Short: "Cancel a task and its dependents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		CheckReadonly("task cancel")

		id, err := resolveTaskID(args[0])
		if err != nil {
			return err
		}
		task, err := store.GetTask(rootCtx, id)
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		if task.Status == types.StatusRunning && !force {
			return fmt.Errorf("task %s is running; pass --force to cancel it anyway", id)
		}

		cancelled, err := queueSvc.CancelTask(rootCtx, id)
		if err != nil {
			return err
		}
		if jsonOutput {
			data, _ := json.MarshalIndent(map[string]interface{}{"cancelled": cancelled}, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("cancelled %d task(s): %s\n", len(cancelled), strings.Join(cancelled, ", "))
		return nil
	},
}

var taskCheckStaleCmd = &cobra.Command{
	Use:   "check-stale",
	Short: "Fail any RUNNING task that has exceeded its execution timeout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		CheckReadonly("task check-stale")

		cancelled, err := queueSvc.HandleStaleTasks(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			data, _ := json.MarshalIndent(map[string]interface{}{"cascaded_cancellations": cancelled}, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("checked for stale tasks, cascaded %d cancellation(s)\n", len(cancelled))
		return nil
	},
}

func printTask(task *types.Task) error {
	if jsonOutput {
		data, err := json.MarshalIndent(task, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("%s %s [P%d] %s\n", renderStatus(task.Status), task.ID, task.BasePriority, task.Summary)
	fmt.Printf("  prompt:   %s\n", task.Prompt)
	fmt.Printf("  source:   %s   agent: %s   retries: %d/%d\n", task.Source, task.AgentType, task.RetryCount, task.MaxRetries)
	if task.Deadline != nil {
		fmt.Printf("  deadline: %s\n", task.Deadline.Format(time.RFC3339))
	}
	if task.ErrorMessage != nil {
		fmt.Printf("  error:    %s\n", *task.ErrorMessage)
	}
	return nil
}

func printTaskList(tasks []*types.Task) error {
	if jsonOutput {
		data, err := json.MarshalIndent(tasks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	for _, t := range tasks {
		fmt.Printf("%s %s [P%d] %s\n", renderStatus(t.Status), t.ID[:8], t.BasePriority, t.Summary)
	}
	fmt.Printf("%s\n", mutedStyle.Render(strconv.Itoa(len(tasks))+" task(s)"))
	return nil
}
