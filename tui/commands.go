package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bassamadnan/ordermail/pipeline"
)

// waitForEventCmd reads one event. The model re-queues it after each
// event until the channel closes.
func waitForEventCmd(events <-chan pipeline.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return EventMsg(e)
	}
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg{Time: t}
	})
}
