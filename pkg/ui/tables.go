package ui

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"cfmmcdl/internal/ledger"
	"cfmmcdl/pkg/accounts"
)

// RenderAccountsTable prints the roster, passwords never included.
func RenderAccountsTable(w io.Writer, list []accounts.Account) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Division", "Company", "Account"})
	for i, a := range list {
		t.AppendRow(table.Row{i + 1, a.DivisionName, a.CompanyShort, a.AccountNo})
	}
	t.Render()
}

// RenderRunsTable prints recent run summaries from the ledger.
func RenderRunsTable(w io.Writer, runs []ledger.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Started", "Ended", "Downloaded", "Failed", "Skipped", "Cancelled"})
	for _, r := range runs {
		t.AppendRow(table.Row{r.RunID, r.StartedAt, r.EndedAt, r.Downloaded, r.Failed, r.Skipped, r.Cancelled})
	}
	t.Render()
}
