package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/odgrim/abathur-swarm/internal/types"
	"github.com/stretchr/testify/require"
)

func mustInsertDependency(t *testing.T, s *Store, dependent, prerequisite string) *types.TaskDependency {
	t.Helper()
	d := &types.TaskDependency{
		ID:                 uuid.NewString(),
		DependentTaskID:    dependent,
		PrerequisiteTaskID: prerequisite,
		DependencyType:     types.DependencySequential,
		CreatedAt:          time.Now().UTC(),
	}
	require.NoError(t, s.InsertDependency(context.Background(), d))
	return d
}

func TestDependencyLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prereq := newTask(t, types.StatusReady, nil)
	dependent := newTask(t, types.StatusBlocked, nil)
	mustInsertTask(t, s, prereq)
	mustInsertTask(t, s, dependent)
	mustInsertDependency(t, s, dependent.ID, prereq.ID)

	unresolved, err := s.GetUnresolvedEdges(ctx)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)

	prereqs, err := s.GetPrerequisites(ctx, dependent.ID)
	require.NoError(t, err)
	require.Equal(t, []string{prereq.ID}, prereqs)

	dependents, err := s.GetDirectDependents(ctx, prereq.ID)
	require.NoError(t, err)
	require.Equal(t, []string{dependent.ID}, dependents)

	resolved, err := allPrerequisitesResolvedTx(ctx, s.db, dependent.ID)
	require.NoError(t, err)
	require.False(t, resolved)

	affected, err := resolveEdgesForPrerequisiteTx(ctx, s.db, prereq.ID, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, []string{dependent.ID}, affected)

	resolved, err = allPrerequisitesResolvedTx(ctx, s.db, dependent.ID)
	require.NoError(t, err)
	require.True(t, resolved)

	unresolved, err = s.GetUnresolvedEdges(ctx)
	require.NoError(t, err)
	require.Len(t, unresolved, 0)
}

func TestAllPrerequisitesResolved_MultipleEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newTask(t, types.StatusCompleted, nil)
	b := newTask(t, types.StatusReady, nil)
	dependent := newTask(t, types.StatusBlocked, nil)
	mustInsertTask(t, s, a)
	mustInsertTask(t, s, b)
	mustInsertTask(t, s, dependent)
	mustInsertDependency(t, s, dependent.ID, a.ID)
	mustInsertDependency(t, s, dependent.ID, b.ID)

	_, err := resolveEdgesForPrerequisiteTx(ctx, s.db, a.ID, time.Now().UTC())
	require.NoError(t, err)

	resolved, err := allPrerequisitesResolvedTx(ctx, s.db, dependent.ID)
	require.NoError(t, err)
	require.False(t, resolved, "b is still unresolved")

	_, err = resolveEdgesForPrerequisiteTx(ctx, s.db, b.ID, time.Now().UTC())
	require.NoError(t, err)

	resolved, err = allPrerequisitesResolvedTx(ctx, s.db, dependent.ID)
	require.NoError(t, err)
	require.True(t, resolved)
}
