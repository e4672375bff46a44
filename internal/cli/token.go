package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"quizroom-service/internal/domain"
	transport "quizroom-service/internal/transport/http"
)

// NewTokenCmd mints a bearer token for local testing against the configured secret.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		identity domain.Identity
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret (or JWT_SECRET) must be set")
			}
			token, err := transport.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(identity, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity.UserID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&identity.Name, "name", "", "display name")
	cmd.Flags().StringVar(&identity.AvatarPath, "avatar", "", "avatar path")
	cmd.Flags().StringVar(&identity.Role, "role", "", "role, e.g. Admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
