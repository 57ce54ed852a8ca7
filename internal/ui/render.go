package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/untoldecay/MnemoLog/internal/retrieval"
	"github.com/untoldecay/MnemoLog/internal/types"
)

// NewTable builds a bordered table in the shared style.
func NewTable(width int, headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(BorderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Width(width).
		Headers(headers...)
}

// RenderEntryTable shows scored query results.
func RenderEntryTable(items []*retrieval.ScoredEntry, width int) string {
	t := NewTable(width, "ID", "TOPIC", "SCORE", "TAGS")
	for _, item := range items {
		t.Row(
			shortID(item.Entry.ID),
			truncate(item.Entry.Topic, 40),
			fmt.Sprintf("%.3f", item.Score),
			strings.Join(item.Entry.Tags, ","),
		)
	}
	return t.Render()
}

// RenderTripleTable shows triples.
func RenderTripleTable(items []*types.Triple, width int) string {
	t := NewTable(width, "ID", "SUBJECT", "PREDICATE", "OBJECT")
	for _, tr := range items {
		t.Row(shortID(tr.ID), truncate(tr.Subject, 25), truncate(tr.Predicate, 20), truncate(tr.Object, 25))
	}
	return t.Render()
}

// RenderTransactionTable shows the undo log.
func RenderTransactionTable(items []*types.Transaction, width int) string {
	t := NewTable(width, "ID", "OP", "TYPE", "TARGET", "REVERTED")
	for _, tx := range items {
		reverted := ""
		if tx.RevertedBy != nil {
			reverted = shortID(*tx.RevertedBy)
		}
		t.Row(shortID(tx.ID), string(tx.Op), string(tx.EntityType), shortID(tx.EntityID), reverted)
	}
	return t.Render()
}

// RenderMarkdown renders entry content as markdown when stdout is a TTY,
// falling back to the raw text.
func RenderMarkdown(content string, width int) string {
	if !ShouldUseColor() {
		return content
	}
	style := "light"
	if DarkBackground() {
		style = "dark"
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return out
}

// RenderEntryDetail shows one entry with provenance.
func RenderEntryDetail(e *types.Entry, width int) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(e.Topic))
	b.WriteString("\n")
	b.WriteString(MutedStyle.Render(e.ID))
	b.WriteString("\n\n")
	b.WriteString(RenderMarkdown(e.Content, width))
	b.WriteString("\n")

	meta := []string{}
	if len(e.Tags) > 0 {
		meta = append(meta, "tags: "+strings.Join(e.Tags, ","))
	}
	if e.Source != nil {
		meta = append(meta, "source: "+*e.Source)
	}
	if e.Actor != nil {
		meta = append(meta, "actor: "+*e.Actor)
	}
	if e.Confidence != nil {
		meta = append(meta, fmt.Sprintf("confidence: %.2f", *e.Confidence))
	}
	meta = append(meta, "created: "+e.CreatedAt)
	b.WriteString(MutedStyle.Render(strings.Join(meta, "  ")))
	return b.String()
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
