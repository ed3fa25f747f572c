package main

import (
	"time"

	"github.com/spf13/cobra"

	jwttoken "lexbounty/internal/jwt_token"
	"lexbounty/internal/platform/config"
	"lexbounty/internal/platform/secrets"
	id "lexbounty/pkg/domain"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint access tokens signed with the server key",
	}

	var (
		account string
		ttl     time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue an access token for an account",
		Long: `Issue an access token for an account, signed with JWT_SIGNING_KEY and
stamped with JWT_ISSUER and JWT_AUDIENCE from the environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := id.ParseAccountID(account)
			if err != nil {
				return err
			}
			cfg := config.FromEnv()
			if ttl <= 0 {
				ttl = cfg.TokenTTL
			}
			svc := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
			token, err := svc.GenerateAccessToken(accountID, ttl)
			if err != nil {
				return err
			}
			fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&account, "account", "", "Account id the token authenticates")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to JWT_TOKEN_TTL)")
	_ = issue.MarkFlagRequired("account")

	secret := &cobra.Command{
		Use:   "secret",
		Short: "Generate a /metrics scrape secret and its hash",
		Long: `Generate a random scrape secret. Give the secret to the metrics scraper
as a bearer token and set METRICS_TOKEN_HASH on the server to the printed hash.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plain, err := secrets.Generate()
			if err != nil {
				return err
			}
			hash, err := secrets.Hash(plain)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fprintln(out, "secret: "+plain)
			fprintln(out, "METRICS_TOKEN_HASH="+hash)
			return nil
		},
	}

	cmd.AddCommand(issue, secret)
	return cmd
}
