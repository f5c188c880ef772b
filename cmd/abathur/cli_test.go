package main

import (
	"context"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/odgrim/abathur-swarm/internal/queue"
	"github.com/odgrim/abathur-swarm/internal/resolver"
	"github.com/odgrim/abathur-swarm/internal/store/sqlite"
)

// setUpCLI wires the package-level globals PersistentPreRunE would
// normally set up, against a fresh in-memory store, without going through
// cobra's Execute/flag-parsing path.
func setUpCLI(t *testing.T) {
	t.Helper()
	s, err := sqlite.OpenInMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	store = s
	res = resolver.New(s)
	queueSvc = queue.New(s, res)
	rootCtx = context.Background()
	jsonOutput = false
	readonlyMode = false
	activeOrchestrator = nil
	useASCIITree = false
}

// resetFlags restores every flag on fs to its declared default, so tests
// that share the package-level command singletons don't leak flag values
// set by an earlier test in the same file.
func resetFlags(t *testing.T, fs *pflag.FlagSet) {
	t.Helper()
	fs.VisitAll(func(f *pflag.Flag) {
		require.NoError(t, f.Value.Set(f.DefValue))
		f.Changed = false
	})
}
