package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"north-backend/infrastructure/config"
	"north-backend/pkg/auth"
)

var (
	tokenUser  string
	tokenEmail string
	tokenTTL   time.Duration
)

// tokenCmd issues a development token signed with JWT_SECRET
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an HS256 token for local development",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET is required to sign tokens")
		}
		gen, err := auth.NewJWTGenerator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, tokenTTL)
		if err != nil {
			return err
		}
		token, err := gen.GenerateToken(tokenUser, tokenEmail)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "dev-user", "user id (sub claim)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
