package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"lexbounty/internal/bounty/escrow"
	"lexbounty/internal/bounty/handler"
	"lexbounty/internal/bounty/models"
)

var (
	sectionHeaderStyle = color.New(color.Bold, color.FgHiWhite)
	idStyle            = color.New(color.Faint)
	okStyle            = color.New(color.FgGreen)
	warnStyle          = color.New(color.FgYellow)
	badStyle           = color.New(color.FgRed, color.Bold)
)

func statusColor(s models.BountyStatus) string {
	switch s {
	case models.StatusOpen:
		return color.New(color.FgCyan).Sprint(s)
	case models.StatusInProgress:
		return warnStyle.Sprint(s)
	case models.StatusCompleted:
		return okStyle.Sprint(s)
	default:
		return idStyle.Sprint(s)
	}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Options.SeparateRows = false
	return t
}

func renderBountyList(w io.Writer, bounties []handler.BountyResponse) {
	if len(bounties) == 0 {
		fprintln(w, "No bounties found")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Title", "Status", "Raised", "Goal", "Escrow", "Due"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	for _, b := range bounties {
		t.AppendRow(table.Row{
			idStyle.Sprint(b.ID),
			b.Title,
			statusColor(b.Status),
			b.RaisedAmount,
			b.TotalAmount,
			b.EscrowBalance,
			b.DueDate.Format("2006-01-02"),
		})
	}
	t.Render()
}

func renderBounty(w io.Writer, b handler.BountyResponse, snap escrow.Snapshot) {
	fprintln(w, sectionHeaderStyle.Sprint(b.Title))
	fprintln(w, fmt.Sprintf("  id:       %s", b.ID))
	fprintln(w, fmt.Sprintf("  status:   %s", statusColor(b.Status)))
	fprintln(w, fmt.Sprintf("  ngo:      %s", b.NGO))
	lawyer := b.Lawyer
	if lawyer == "" {
		lawyer = "-"
	}
	fprintln(w, fmt.Sprintf("  lawyer:   %s", lawyer))
	fprintln(w, fmt.Sprintf("  funding:  %d / %d (paid %d, refunded %d)", b.RaisedAmount, b.TotalAmount, b.PaidAmount, b.RefundedAmount))

	balance := okStyle.Sprintf("%d (ledger %d)", snap.Derived, snap.OnLedger)
	if !snap.InBalance {
		balance = badStyle.Sprintf("%d (ledger %d) OUT OF BALANCE", snap.Derived, snap.OnLedger)
	}
	fprintln(w, "  escrow:   "+balance)
	fprintln(w)

	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Milestone", "Amount", "Proof", "State"})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 3, Align: text.AlignRight}})
	for _, m := range b.Milestones {
		state := warnStyle.Sprint("pending")
		switch {
		case m.Paid:
			state = okStyle.Sprint("paid")
		case m.Completed:
			state = okStyle.Sprint("completed")
		case m.HasProof():
			state = color.New(color.FgCyan).Sprint("proof submitted")
		}
		proof := m.ProofHash
		if proof == "" {
			proof = "-"
		}
		t.AppendRow(table.Row{m.Index, m.Title, m.Amount, proof, state})
	}
	t.Render()
}

func renderEvents(w io.Writer, events []models.Event) {
	if len(events) == 0 {
		fprintln(w, "No events")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Time", "Event", "Actor", "Detail"})
	for _, e := range events {
		t.AppendRow(table.Row{
			formatTime(e.OccurredAt),
			string(e.Type),
			shortID(e.Actor.String()),
			eventDetail(e),
		})
	}
	t.Render()
}
