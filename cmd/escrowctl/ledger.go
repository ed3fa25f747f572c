package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"lexbounty/internal/ledger"
	"lexbounty/internal/platform/config"
	"lexbounty/internal/platform/postgres"
	id "lexbounty/pkg/domain"
)

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Operate on the ledger database directly",
		Long: `Operate on the ledger database named by DATABASE_URL. Only durable
deployments can be credited this way; the in-memory ledger lives inside
the server process.`,
	}

	var (
		account string
		amount  int64
	)
	credit := &cobra.Command{
		Use:   "credit",
		Short: "Credit an account with funds from outside the marketplace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := id.ParseAccountID(account)
			if err != nil {
				return err
			}
			store, closeDB, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			acct := ledger.UserAccount(accountID)
			if err := store.Credit(cmd.Context(), acct, amount); err != nil {
				return err
			}
			balance, err := store.Balance(cmd.Context(), acct)
			if err != nil {
				return err
			}
			fprintln(cmd.OutOrStdout(), okStyle.Sprintf("credited %d", amount)+fmt.Sprintf(" to %s, balance %d", acct, balance))
			return nil
		},
	}
	credit.Flags().StringVar(&account, "account", "", "Account id to credit")
	credit.Flags().Int64Var(&amount, "amount", 0, "Amount in minor units")
	_ = credit.MarkFlagRequired("account")
	_ = credit.MarkFlagRequired("amount")

	var balanceAccount string
	balance := &cobra.Command{
		Use:   "balance",
		Short: "Print an account's ledger balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := id.ParseAccountID(balanceAccount)
			if err != nil {
				return err
			}
			store, closeDB, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			b, err := store.Balance(cmd.Context(), ledger.UserAccount(accountID))
			if err != nil {
				return err
			}
			fprintln(cmd.OutOrStdout(), b)
			return nil
		},
	}
	balance.Flags().StringVar(&balanceAccount, "account", "", "Account id to inspect")
	_ = balance.MarkFlagRequired("account")

	cmd.AddCommand(credit, balance)
	return cmd
}

func openLedger(cmd *cobra.Command) (*ledger.PostgresStore, func(), error) {
	cfg := config.FromEnv()
	if !cfg.UsePostgres() {
		return nil, nil, errors.New("DATABASE_URL is not set")
	}
	db, err := postgres.Open(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return ledger.NewPostgres(db), func() { _ = db.Close() }, nil
}
