package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odgrim/abathur-swarm/internal/config"
)

func TestInitCmd_CreatesADatabaseFileAtTheConfiguredPath(t *testing.T) {
	rootCtx = context.Background()
	cfg = &config.Config{DBPath: filepath.Join(t.TempDir(), "abathur.db")}

	resetFlags(t, initCmd.Flags())
	require.NoError(t, initCmd.RunE(initCmd, nil))
}

func TestInitCmd_ValidateFailsAgainstAMissingDatabase(t *testing.T) {
	rootCtx = context.Background()
	cfg = &config.Config{DBPath: filepath.Join(t.TempDir(), "does-not-exist.db")}

	resetFlags(t, initCmd.Flags())
	require.NoError(t, initCmd.Flags().Set("validate", "true"))
	err := initCmd.RunE(initCmd, nil)
	require.Error(t, err)
}
