package cli

import (
	"time"

	"github.com/spf13/cobra"

	"quizroom-service/internal/config"
)

// NewSweepCmd auto-submits stale attempts once and exits. Useful from an
// external scheduler when the server's own sweep is disabled.
func NewSweepCmd(configPath *string) *cobra.Command {
	var staleAfter string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Auto-submit attempts left open longer than the stale threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			svc, err := buildServices(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			raw := staleAfter
			if raw == "" {
				raw = cfg.Sweep.StaleAfter
			}
			closed, err := svc.runner.AutoSubmitStale(cmd.Context(), config.TTLDuration(raw, 30*time.Minute))
			if err != nil {
				return err
			}
			config.Logger.WithField("closed", closed).Info("sweep finished")
			return nil
		},
	}
	cmd.Flags().StringVar(&staleAfter, "stale-after", "", "override sweep.stale_after (e.g. 45m)")
	return cmd
}
