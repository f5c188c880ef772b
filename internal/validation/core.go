// Package validation holds the small parse-and-validate helpers the CLI
// applies to flag values before handing them to internal/queue: priority
// range, status/source enums, task-id shape, and the two duration
// grammars (--older-than, --deadline). Each helper returns a plain error
// wrapping types.ErrValidation, the same sentinel internal/types.Validate
// uses, so the CLI's error rendering treats both sources identically.
package validation

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/odgrim/abathur-swarm/internal/types"
)

// BasePriority checks a --priority value is within [types.MinBasePriority,
// types.MaxBasePriority].
func BasePriority(p int) error {
	if p < types.MinBasePriority || p > types.MaxBasePriority {
		return fmt.Errorf("%w: priority %d must be between %d and %d", types.ErrValidation, p, types.MinBasePriority, types.MaxBasePriority)
	}
	return nil
}

// Status checks a --status value names a known lifecycle state.
func Status(s string) (types.Status, error) {
	status := types.Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: invalid status %q, valid statuses: %v", types.ErrValidation, s, types.AllStatuses)
	}
	return status, nil
}

// Source checks a --source value names a known submitter.
func Source(s string) (types.Source, error) {
	source := types.Source(s)
	if !source.Valid() {
		return "", fmt.Errorf("%w: invalid source %q, valid sources: %v", types.ErrValidation, s, types.AllSources)
	}
	return source, nil
}

// TaskID checks id is a syntactically valid UUID, the shape QueueService
// assigns every task and expects back in the --requires flag.
func TaskID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q is not a valid task id: %v", types.ErrValidation, id, err)
	}
	return nil
}
