package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/demande-workflow/internal/container"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQLite migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		applied, err := container.Migrate(cmd.Context(), cfg.Database, logger)
		if err != nil {
			logger.Error("Migration failed", zap.Error(err))
			return err
		}
		cmd.Printf("applied %d migration(s) to %s\n", applied, cfg.Database.Path)
		return nil
	},
}
