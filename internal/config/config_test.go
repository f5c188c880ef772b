package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// envSnapshot clears ABATHUR_ environment variables for the duration of a
// test and restores whatever was there afterward.
func envSnapshot(t *testing.T) func() {
	t.Helper()
	saved := make(map[string]string)
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "ABATHUR_") {
			key := strings.SplitN(env, "=", 2)[0]
			saved[key] = os.Getenv(key)
			os.Unsetenv(key)
		}
	}
	return func() {
		for _, env := range os.Environ() {
			if strings.HasPrefix(env, "ABATHUR_") {
				os.Unsetenv(strings.SplitN(env, "=", 2)[0])
			}
		}
		for key, val := range saved {
			os.Setenv(key, val)
		}
	}
}

func TestLoad_DefaultsWithNoFileNoEnvNoFlags(t *testing.T) {
	defer envSnapshot(t)()

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "abathur.db", cfg.DBPath)
	require.Equal(t, 1, cfg.MaxConcurrentAgents)
	require.Equal(t, 2*time.Second, cfg.PollInterval)
	require.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	require.Nil(t, cfg.TaskLimit)
	require.False(t, cfg.Debug)
}

func TestLoad_EnvVarsOverrideDefaults(t *testing.T) {
	defer envSnapshot(t)()

	os.Setenv("ABATHUR_MAX_CONCURRENT_AGENTS", "4")
	os.Setenv("ABATHUR_TASK_LIMIT", "10")
	os.Setenv("ABATHUR_DEBUG", "true")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.MaxConcurrentAgents)
	require.NotNil(t, cfg.TaskLimit)
	require.Equal(t, 10, *cfg.TaskLimit)
	require.True(t, cfg.Debug)
}

func TestLoad_ConfigFileIsAppliedAndEnvOverridesIt(t *testing.T) {
	defer envSnapshot(t)()

	dir := t.TempDir()
	path := filepath.Join(dir, "abathur.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_concurrent_agents: 3\npoll_interval_seconds: 5\n"), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.MaxConcurrentAgents)
	require.Equal(t, 5*time.Second, cfg.PollInterval)

	os.Setenv("ABATHUR_MAX_CONCURRENT_AGENTS", "7")
	cfg, err = Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.MaxConcurrentAgents, "env vars take precedence over the config file")
}

func TestLoad_MissingConfigFileIsNotAnError(t *testing.T) {
	defer envSnapshot(t)()

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"), nil)
	require.NoError(t, err)
	require.Equal(t, 1, cfg.MaxConcurrentAgents)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	defer envSnapshot(t)()
	os.Setenv("ABATHUR_MAX_CONCURRENT_AGENTS", "4")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int(KeyMaxConcurrentAgents, 1, "")
	require.NoError(t, flags.Set(KeyMaxConcurrentAgents, "9"))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	require.Equal(t, 9, cfg.MaxConcurrentAgents)
}

func TestLoad_RejectsNonPositiveMaxConcurrentAgents(t *testing.T) {
	defer envSnapshot(t)()
	os.Setenv("ABATHUR_MAX_CONCURRENT_AGENTS", "0")

	_, err := Load("", nil)
	require.Error(t, err)
}

func TestLoad_RejectsNegativeTaskLimit(t *testing.T) {
	defer envSnapshot(t)()
	os.Setenv("ABATHUR_TASK_LIMIT", "-1")

	_, err := Load("", nil)
	require.Error(t, err)
}
