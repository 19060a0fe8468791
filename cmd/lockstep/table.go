package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"lockstep/internal/cache"
)

// statusTable renders the cached-environment listing for the status command.
// Sizes are right-aligned; everything else reads left to right.
func statusTable(entries []cache.EnvEntry) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Environment", "Complete", "Size", "Modified"})

	for _, entry := range entries {
		tw.AppendRow(table.Row{
			entry.Name,
			yesNo(entry.Complete),
			humanSize(entry.SizeBytes),
			entry.ModifiedAt.Format("2006-01-02 15:04"),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
