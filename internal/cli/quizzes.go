package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"quizroom-service/internal/config"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/postgres"
)

// NewImportQuizCmd loads quiz documents from a JSON file into Postgres.
func NewImportQuizCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import-quiz",
		Short: "Upsert quizzes from a JSON array file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return errors.New("postgres url not configured")
			}
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var quizzes []domain.Quiz
			if err := json.Unmarshal(raw, &quizzes); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}

			db, err := openMigrated(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return err
			}
			_ = db.Close()

			pool, err := pgxpool.Connect(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()
			loader := postgres.NewQuizLoader(pool)
			for _, quiz := range quizzes {
				if quiz.ID == "" {
					return errors.New("every quiz needs an id")
				}
				if err := loader.SaveQuiz(cmd.Context(), quiz); err != nil {
					return err
				}
				config.Logger.WithField("quiz_id", quiz.ID).Info("quiz imported")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to a JSON array of quizzes")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
