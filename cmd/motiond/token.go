package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"plcmotion/pkg/api"
	"plcmotion/pkg/config"
)

var (
	tokenSubject  string
	tokenReadOnly bool
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token signed with the configured secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.API.JWTSecret == "" {
			return fmt.Errorf("api.jwt_secret is not set, authentication is disabled")
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = time.Duration(cfg.API.TokenTTL * float64(time.Hour))
		}
		scopes := []string{api.ScopeRead}
		if !tokenReadOnly {
			scopes = append(scopes, api.ScopeControl)
		}
		tok, err := api.NewAuth(cfg.API.JWTSecret).NewToken(tokenSubject, scopes, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "token subject")
	tokenCmd.Flags().BoolVar(&tokenReadOnly, "read-only", false, "grant only the read scope")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default: api.token_ttl hours)")
}
