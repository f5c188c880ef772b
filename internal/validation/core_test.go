package validation

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odgrim/abathur-swarm/internal/types"
)

func TestBasePriority(t *testing.T) {
	require.NoError(t, BasePriority(types.MinBasePriority))
	require.NoError(t, BasePriority(types.MaxBasePriority))
	require.NoError(t, BasePriority(5))

	err := BasePriority(types.MaxBasePriority + 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrValidation))

	err = BasePriority(types.MinBasePriority - 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrValidation))
}

func TestStatus(t *testing.T) {
	s, err := Status("ready")
	require.NoError(t, err)
	require.Equal(t, types.StatusReady, s)

	_, err = Status("not-a-status")
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrValidation))
}

func TestSource(t *testing.T) {
	s, err := Source("human")
	require.NoError(t, err)
	require.Equal(t, types.SourceHuman, s)

	_, err = Source("not-a-source")
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrValidation))
}

func TestTaskID(t *testing.T) {
	require.NoError(t, TaskID(uuid.NewString()))

	err := TaskID("not-a-uuid")
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrValidation))
}
