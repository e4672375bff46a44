package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"quizroom-service/internal/config"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return errors.New("postgres url not configured")
	}
	db, err := openMigrated(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer db.Close()
	config.Logger.Info("schema up to date")
	return nil
}
