package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odgrim/abathur-swarm/internal/types"
)

func TestParseOlderThanDays(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"3d", 3},
		{"2w", 14},
		{"1m", 30},
		{"1y", 365},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOlderThanDays(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseOlderThanDays_RejectsMalformedInput(t *testing.T) {
	for _, input := range []string{"", "3", "d", "3x", "-3d", "3 d", "3dd"} {
		_, err := ParseOlderThanDays(input)
		require.Errorf(t, err, "expected error for %q", input)
		require.True(t, errors.Is(err, types.ErrValidation))
	}
}

func TestParseDeadline_RFC3339(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	got, err := ParseDeadline("2026-08-15T09:30:00Z", now)
	require.NoError(t, err)
	require.Equal(t, 2026, got.Year())
	require.Equal(t, time.August, got.Month())
	require.Equal(t, 15, got.Day())
	require.Equal(t, 9, got.Hour())
}

func TestParseDeadline_DateOnly(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	got, err := ParseDeadline("2026-09-01", now)
	require.NoError(t, err)
	require.Equal(t, time.September, got.Month())
	require.Equal(t, 1, got.Day())
}

func TestParseDeadline_NaturalLanguage(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.Local)
	got, err := ParseDeadline("tomorrow", now)
	require.NoError(t, err)
	require.Equal(t, 31, got.Day())
}

func TestParseDeadline_RejectsGarbage(t *testing.T) {
	_, err := ParseDeadline("not a date at all", time.Now())
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrValidation))
}
