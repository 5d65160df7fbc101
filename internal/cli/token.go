package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"learnloop-service/internal/auth"
	"learnloop-service/internal/config"
	"learnloop-service/internal/domain"
)

// NewTokenCmd mints a bearer token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var userID, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			parsed, ok := domain.ParseRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			tokens := auth.NewTokenService(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.TokenExpiry, 24*time.Hour))
			token, err := tokens.Issue(domain.Caller{UserID: userID, Role: parsed})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id placed in the sub claim")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleUser), "USER, ADMIN or SUPER_ADMIN")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
