package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// envFiles are loaded from the working directory before the command tree is
// built so flag defaults see them.
// Variables already set in the environment win.
var envFiles = []string{".env", ".env.local"}

type globalOptions struct {
	apiURL  string
	token   string
	noColor bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "escrowctl",
		Short: "Operate the lexbounty milestone escrow service",
		Long: `escrowctl inspects bounties over the HTTP API, uploads proof documents,
mints development access tokens and credits ledger accounts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().StringVar(&opts.apiURL, "api", envOr("LEXBOUNTY_API", "http://localhost:8080"), "Base URL of the escrow API")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("LEXBOUNTY_TOKEN"), "Bearer token for authenticated calls")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	root.AddGroup(&cobra.Group{ID: "api", Title: "API Commands"})
	root.AddGroup(&cobra.Group{ID: "ops", Title: "Operator Commands"})

	bounty := newBountyCmd(opts)
	bounty.GroupID = "api"
	proof := newProofCmd(opts)
	proof.GroupID = "api"
	token := newTokenCmd()
	token.GroupID = "ops"
	ledger := newLedgerCmd()
	ledger.GroupID = "ops"

	root.AddCommand(bounty, proof, token, ledger)
	return root
}

func loadEnvFiles() {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load %s: %v\n", f, err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
