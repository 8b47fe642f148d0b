package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	tableTitleStyle  = lipgloss.NewStyle().Bold(true)
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	tableRowStyle    = lipgloss.NewStyle().Padding(0, 1)
	tableMutedStyle  = lipgloss.NewStyle().Faint(true)
)

// simpleTable renders static rows with width-computed columns.
type simpleTable struct {
	title   string
	headers []string
	rows    [][]string
}

func newTable(title string, headers ...string) *simpleTable {
	return &simpleTable{title: title, headers: headers}
}

func (t *simpleTable) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *simpleTable) render() string {
	if len(t.rows) == 0 {
		return ""
	}

	var sb strings.Builder

	if t.title != "" {
		sb.WriteString(tableTitleStyle.Render(t.title))
		sb.WriteString("\n")
	}

	// Column widths from the widest cell, padding included.
	colWidths := make([]int, len(t.headers))
	for i, h := range t.headers {
		colWidths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(colWidths) {
				if w := lipgloss.Width(cell); w > colWidths[i] {
					colWidths[i] = w
				}
			}
		}
	}
	for i := range colWidths {
		colWidths[i] += 2
	}

	for i, h := range t.headers {
		sb.WriteString(tableHeaderStyle.Width(colWidths[i]).Render(h))
		if i < len(t.headers)-1 {
			sb.WriteString(tableMutedStyle.Render("|"))
		}
	}
	sb.WriteString("\n")

	totalWidth := len(t.headers) - 1
	for _, w := range colWidths {
		totalWidth += w
	}
	sb.WriteString(tableMutedStyle.Render(strings.Repeat("-", totalWidth)) + "\n")

	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(colWidths) {
				sb.WriteString(tableRowStyle.Width(colWidths[i]).Render(cell))
				if i < len(row)-1 {
					sb.WriteString(tableMutedStyle.Render("|"))
				}
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
