// Package config loads process-level settings (database path, swarm
// tuning, debug verbosity) through a layered viper instance: flag
// overrides beat environment variables beat an optional config file beat
// built-in defaults, mirroring the precedence the teacher's own
// viper.New()-per-file instances rely on in cmd/bd/config.go.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys are the canonical viper keys, also usable as ABATHUR_-prefixed env
// vars (e.g. db_path -> ABATHUR_DB_PATH) and as abathur.yaml fields.
const (
	KeyDBPath              = "db_path"
	KeyMaxConcurrentAgents = "max_concurrent_agents"
	KeyPollIntervalSeconds = "poll_interval_seconds"
	KeyShutdownTimeoutSecs = "shutdown_timeout_seconds"
	KeyTaskLimit           = "task_limit"
	KeyDebug               = "debug"
)

// Config is the resolved set of process settings. TaskLimit is a pointer
// because "unset" (run forever) and "0" (halt before any spawn) are both
// meaningful, distinct values.
type Config struct {
	DBPath              string
	MaxConcurrentAgents int
	PollInterval        time.Duration
	ShutdownTimeout     time.Duration
	TaskLimit           *int
	Debug               bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyDBPath, "abathur.db")
	v.SetDefault(KeyMaxConcurrentAgents, 1)
	v.SetDefault(KeyPollIntervalSeconds, 2)
	v.SetDefault(KeyShutdownTimeoutSecs, 30)
	v.SetDefault(KeyDebug, false)
}

// Load builds the layered viper instance and resolves it into a Config.
//
// Precedence, highest first: flags (if flags is non-nil), ABATHUR_* env
// vars, configPath (if non-empty and present), then the defaults above.
// configPath may name a .yaml or .toml file; an empty configPath skips
// file lookup entirely rather than erroring.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ABATHUR")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
			}
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: binding flags: %w", err)
		}
	}

	cfg := &Config{
		DBPath:              v.GetString(KeyDBPath),
		MaxConcurrentAgents: v.GetInt(KeyMaxConcurrentAgents),
		PollInterval:        time.Duration(v.GetInt(KeyPollIntervalSeconds)) * time.Second,
		ShutdownTimeout:     time.Duration(v.GetInt(KeyShutdownTimeoutSecs)) * time.Second,
		Debug:               v.GetBool(KeyDebug),
	}

	if v.IsSet(KeyTaskLimit) {
		limit := v.GetInt(KeyTaskLimit)
		cfg.TaskLimit = &limit
	}

	if cfg.MaxConcurrentAgents < 1 {
		return nil, fmt.Errorf("config: %s must be >= 1, got %d", KeyMaxConcurrentAgents, cfg.MaxConcurrentAgents)
	}
	if cfg.TaskLimit != nil && *cfg.TaskLimit < 0 {
		return nil, fmt.Errorf("config: %s must be >= 0, got %d", KeyTaskLimit, *cfg.TaskLimit)
	}

	return cfg, nil
}
