package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/waabox/watchsweep/internal/sweep"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func renderReport(r sweep.Report) string {
	var sb strings.Builder

	verb := "Deleted"
	if r.DryRun {
		verb = "Would delete"
	}
	if len(r.Deleted) == 0 {
		fmt.Fprintf(&sb, "%s: nothing\n", verb)
	} else {
		rows := make([][]string, 0, len(r.Deleted))
		for _, d := range r.Deleted {
			watched := ""
			if !d.WatchedAt.IsZero() {
				watched = d.WatchedAt.Local().Format("2006-01-02 15:04")
			}
			rows = append(rows, []string{
				d.Show,
				fmt.Sprintf("S%02dE%02d", d.Season, d.Number),
				d.Title,
				watched,
				fmt.Sprintf("%d", d.EpisodeFileID),
			})
		}
		sb.WriteString(verb + ":\n")
		sb.WriteString(renderTable(
			[]string{"Show", "Episode", "Title", "Watched", "File"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
		))
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "History entries: %d  deleted: %d  no file: %d  not in library: %d  failed: %d",
		r.Seen, len(r.Deleted), r.NoFile, r.Skipped, r.Failed)
	return sb.String()
}
