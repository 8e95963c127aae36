package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bassamadnan/ordermail/order"
	"github.com/bassamadnan/ordermail/report"
)

// RenderOverview formats the table overview for a terminal, as printed by
// the summary command.
func RenderOverview(ov report.Overview) string {
	var b strings.Builder
	row := func(key, val string) {
		fmt.Fprintf(&b, "%s %s\n", HeaderKeyStyle.Render(fmt.Sprintf("%-15s", key+":")), HeaderValStyle.Render(val))
	}
	row("Orders", fmt.Sprint(ov.Orders))
	row("Cancellations", fmt.Sprint(ov.Cancellations))
	row("Total", fmt.Sprint(ov.Total))
	row("Cancel rate", fmt.Sprintf("%.1f%%", ov.CancellationRate))
	if !ov.RefreshedAt.IsZero() {
		row("Refreshed", ov.RefreshedAt.Local().Format("2006-01-02 15:04:05"))
	}

	b.WriteString("\n")
	for _, s := range order.Statuses() {
		fmt.Fprintf(&b, "  %s %d\n", StatusStyle(s).Render(fmt.Sprintf("%-10s", s)), ov.ByStatus[s])
	}

	if len(ov.ByRetailer) > 0 {
		b.WriteString("\n")
		keys := make([]string, 0, len(ov.ByRetailer))
		for k := range ov.ByRetailer {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s %d\n", DimStyle.Render(fmt.Sprintf("%-10s", k)), ov.ByRetailer[k])
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.Render("ordermail"),
		ContentBoxStyle.Render(strings.TrimRight(b.String(), "\n")))
}

// overviewText is the plain variant shown in the review app side pane.
func overviewText(ov report.Overview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[::b]Orders:[::-] %d\n", ov.Orders)
	fmt.Fprintf(&b, "[::b]Cancellations:[::-] %d\n", ov.Cancellations)
	fmt.Fprintf(&b, "[::b]Total:[::-] %d\n", ov.Total)
	fmt.Fprintf(&b, "[::b]Cancel rate:[::-] %.1f%%\n\n", ov.CancellationRate)
	for _, s := range order.Statuses() {
		fmt.Fprintf(&b, "%-10s %d\n", s, ov.ByStatus[s])
	}
	if !ov.RefreshedAt.IsZero() {
		fmt.Fprintf(&b, "\n[::d]Refreshed %s[::-]", ov.RefreshedAt.Local().Format("15:04:05"))
	}
	return b.String()
}
