package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"genjobs/internal/middleware"
)

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
			if secret == "" {
				return fmt.Errorf("JWT_SECRET environment variable is required")
			}
			if strings.TrimSpace(subject) == "" {
				return fmt.Errorf("--sub is required")
			}
			token, err := middleware.SignJWT(secret, middleware.TokenClaims{
				Sub: subject,
				Exp: time.Now().Add(ttl).Unix(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "user id to embed as the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
