package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/p-blackswan/buffr/internal/config"
	"github.com/p-blackswan/buffr/internal/project"
	"github.com/p-blackswan/buffr/internal/prompt"
	"github.com/p-blackswan/buffr/internal/store"
)

func migrateCmd() *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and seed built-in prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOffline()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			db, err := store.New(cfg.DBPath, logger)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer db.Close()

			version, err := db.SchemaVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d\n", cfg.DBPath, version)

			if !seed {
				return nil
			}
			prompts := prompt.NewStore(db, project.NewStore(db, logger), logger)
			n, err := prompts.SeedBuiltins(cmd.Context())
			if err != nil {
				return fmt.Errorf("seeding prompts: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d built-in prompts\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", true, "Seed built-in prompts")

	return cmd
}
