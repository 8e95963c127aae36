package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/gdamore/tcell/v2"

	"github.com/bassamadnan/ordermail/order"
)

var (
	TitleStyle      = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("63")).Foreground(lipgloss.Color("255")).Padding(0, 1)
	HeaderKeyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	HeaderValStyle  = lipgloss.NewStyle()
	DimStyle        = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "244"})
	ContentBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder(), true).BorderForeground(lipgloss.AdaptiveColor{Light: "245", Dark: "238"}).Padding(0, 1)

	// Progress rows, one per account.
	PendingStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "245", Dark: "240"})
	RunningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)
	DoneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	FailedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	StatusBarSuccessStyle = lipgloss.NewStyle().Background(lipgloss.Color("28")).Foreground(lipgloss.Color("255")).Padding(0, 1)
	StatusBarNormalStyle  = lipgloss.NewStyle().Background(lipgloss.Color("235")).Foreground(lipgloss.Color("250")).Padding(0, 1)
	StatusBarErrorStyle   = lipgloss.NewStyle().Background(lipgloss.Color("196")).Foreground(lipgloss.Color("255")).Padding(0, 1)
)

var statusColors = map[order.Status]string{
	order.StatusOrdered:   "252",
	order.StatusShipped:   "39",
	order.StatusDelivered: "42",
	order.StatusCancelled: "203",
}

// StatusStyle colors a status label.
func StatusStyle(s order.Status) lipgloss.Style {
	c, ok := statusColors[s]
	if !ok {
		c = "252"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(c)).Bold(s.Terminal())
}

// statusCellColor is the tview counterpart of StatusStyle.
func statusCellColor(s order.Status) tcell.Color {
	switch s {
	case order.StatusShipped:
		return tcell.ColorDeepSkyBlue
	case order.StatusDelivered:
		return tcell.ColorGreen
	case order.StatusCancelled:
		return tcell.ColorIndianRed
	}
	return tcell.ColorDefault
}
