// Command `abathur init` creates the on-disk database and applies
// migrations. Adapted from the teacher's cmd/bd/init.go; much smaller
// since there is no repo-local config file format or git integration to
// set up here.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odgrim/abathur-swarm/internal/store/sqlite"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the task database and apply migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		validateOnly, _ := cmd.Flags().GetBool("validate")
		dbPathFlag, _ := cmd.Flags().GetString("db-path")

		path := cfg.DBPath
		if dbPathFlag != "" {
			path = dbPathFlag
		}

		if validateOnly {
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("database %s does not exist or is unreadable: %w", path, err)
			}
			s, err := sqlite.Open(rootCtx, path)
			if err != nil {
				return fmt.Errorf("database %s failed to open: %w", path, err)
			}
			defer s.Close()
			fmt.Printf("%s is a valid abathur database\n", path)
			return nil
		}

		s, err := sqlite.Open(rootCtx, path)
		if err != nil {
			return fmt.Errorf("initializing %s: %w", path, err)
		}
		defer s.Close()

		fmt.Printf("initialized abathur database at %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("validate", false, "check that the database at --db-path already exists and is valid, without creating it")
	initCmd.Flags().String("db-path", "", "database path (defaults to the configured db_path)")
	initCmd.Flags().Bool("skip-template", false, "reserved for parity with the task-template workflow; no templates are bundled yet")
}
