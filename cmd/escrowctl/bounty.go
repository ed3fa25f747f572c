package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"lexbounty/internal/bounty/escrow"
	"lexbounty/internal/bounty/handler"
	"lexbounty/internal/bounty/models"
)

func newBountyCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bounty",
		Short: "Inspect bounties",
	}
	cmd.AddCommand(newBountyListCmd(opts), newBountyShowCmd(opts), newBountyEventsCmd(opts))
	return cmd
}

func newBountyListCmd(opts *globalOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List bounties, optionally by status",
		Long: `List bounties with their funding progress.

Statuses: open, in_progress, completed, cancelled`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/bounties"
			if status != "" {
				path += "?status=" + url.QueryEscape(status)
			}
			var resp handler.ListBountiesResponse
			if err := newAPIClient(opts).get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			renderBountyList(cmd.OutOrStdout(), resp.Bounties)
			return nil
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status")
	return cmd
}

func newBountyShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <bounty-id>",
		Short: "Show a bounty with its milestones and escrow reconciliation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(opts)
			var b handler.BountyResponse
			if err := client.get(cmd.Context(), "/bounties/"+url.PathEscape(args[0]), &b); err != nil {
				return err
			}
			var snap escrow.Snapshot
			if err := client.get(cmd.Context(), "/bounties/"+url.PathEscape(args[0])+"/escrow", &snap); err != nil {
				return err
			}
			renderBounty(cmd.OutOrStdout(), b, snap)
			return nil
		},
	}
}

func newBountyEventsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events <bounty-id>",
		Short: "List the domain events of a bounty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp handler.ListEventsResponse
			if err := newAPIClient(opts).get(cmd.Context(), "/bounties/"+url.PathEscape(args[0])+"/events", &resp); err != nil {
				return err
			}
			renderEvents(cmd.OutOrStdout(), resp.Events)
			return nil
		},
	}
}

func eventDetail(e models.Event) string {
	detail := ""
	if e.MilestoneIndex != nil {
		detail = "milestone " + strconv.Itoa(*e.MilestoneIndex)
	}
	if e.Amount != 0 {
		detail = joinDetail(detail, "amount "+strconv.FormatInt(e.Amount, 10))
	}
	if e.Counterparty != nil {
		detail = joinDetail(detail, "to "+shortID(e.Counterparty.String()))
	}
	return detail
}

func joinDetail(a, b string) string {
	if a == "" {
		return b
	}
	return a + ", " + b
}

func shortID(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}
