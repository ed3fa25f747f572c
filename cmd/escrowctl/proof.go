package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lexbounty/internal/bounty/handler"
	"lexbounty/internal/proofs"
)

func newProofCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proof",
		Short: "Hash and upload milestone proof documents",
	}

	hash := &cobra.Command{
		Use:   "hash <file>",
		Short: "Print the content hash a proof document is registered under",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			fprintln(cmd.OutOrStdout(), proofs.Hash(content))
			return nil
		},
	}

	upload := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a proof document to the proof registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var resp handler.StoreProofResponse
			if err := newAPIClient(opts).postBytes(cmd.Context(), "/proofs", content, &resp); err != nil {
				return err
			}
			if want := proofs.Hash(content); resp.Hash != want {
				return fmt.Errorf("registry returned hash %s, expected %s", resp.Hash, want)
			}
			fprintln(cmd.OutOrStdout(), okStyle.Sprint("stored ")+resp.Hash)
			return nil
		},
	}

	cmd.AddCommand(hash, upload)
	return cmd
}
