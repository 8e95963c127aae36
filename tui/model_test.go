package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bassamadnan/ordermail/pipeline"
	"github.com/bassamadnan/ordermail/reconcile"
)

func update(t *testing.T, m ProgressModel, msg tea.Msg) (ProgressModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	pm, ok := next.(ProgressModel)
	require.True(t, ok)
	return pm, cmd
}

func TestProgressModelTracksAccounts(t *testing.T) {
	events := make(chan pipeline.Event, 4)
	m := NewProgressModel([]string{"a@example.com", "b@example.com"}, events)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 20})

	m, cmd := update(t, m, EventMsg{RunID: "0123456789abcdef", Kind: pipeline.AccountStarted, Account: "a@example.com"})
	require.NotNil(t, cmd, "the model keeps listening for events")
	assert.Equal(t, stateFetching, m.accounts[0].state)
	assert.Equal(t, "0123456789abcdef", m.runID)

	m, _ = update(t, m, EventMsg{Kind: pipeline.Fetched, Account: "a@example.com", Count: 12})
	assert.Equal(t, stateReconciling, m.accounts[0].state)
	assert.Equal(t, 12, m.accounts[0].fetched)

	m, _ = update(t, m, EventMsg{Kind: pipeline.AccountFinished, Account: "A@example.com", Count: 9,
		Summary: reconcile.Summary{Created: 3, Advanced: 2, CancellationsWritten: 1}})
	a := m.accounts[0]
	assert.Equal(t, stateDone, a.state)
	assert.Equal(t, 9, a.added)
	assert.Equal(t, 3, a.created)

	m, _ = update(t, m, EventMsg{Kind: pipeline.AccountFailed, Account: "b@example.com", Err: errors.New("auth failed")})
	assert.Equal(t, stateFailed, m.accounts[1].state)

	view := m.View()
	assert.Contains(t, view, "01234567")
	assert.Contains(t, view, "12 fetched, 9 cached, 3 new, 2 updated, 1 cancelled")
	assert.Contains(t, view, "auth failed")
}

func TestProgressModelUnknownAccountIsAppended(t *testing.T) {
	m := NewProgressModel(nil, make(chan pipeline.Event))
	m, _ = update(t, m, EventMsg{Kind: pipeline.AccountStarted, Account: "late@example.com"})
	require.Len(t, m.accounts, 1)
	assert.Equal(t, "late@example.com", m.accounts[0].email)
}

func TestProgressModelRunDoneQuits(t *testing.T) {
	m := NewProgressModel([]string{"a@example.com"}, make(chan pipeline.Event))
	m, cmd := update(t, m, RunDoneMsg{Result: pipeline.Result{RunID: "x"}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.done)
	assert.False(t, m.Quitting())
	assert.Contains(t, m.View(), "done in")

	_, cmd = update(t, m, tickMsg{Time: time.Now()})
	assert.Nil(t, cmd, "ticking stops once the run is done")
}

func TestProgressModelQuitKey(t *testing.T) {
	m := NewProgressModel([]string{"a@example.com"}, make(chan pipeline.Event))
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.Quitting())
	assert.True(t, strings.Contains(m.View(), "stopping"))
}

func TestWaitForEventCmd(t *testing.T) {
	events := make(chan pipeline.Event, 1)
	events <- pipeline.Event{Kind: pipeline.RunFinished}
	msg := waitForEventCmd(events)()
	assert.Equal(t, EventMsg{Kind: pipeline.RunFinished}, msg)

	close(events)
	assert.Equal(t, eventsClosedMsg{}, waitForEventCmd(events)())
}

func TestTickAdvancesSpinner(t *testing.T) {
	m := NewProgressModel(nil, make(chan pipeline.Event))
	m, cmd := update(t, m, tickMsg{Time: time.Now()})
	assert.NotNil(t, cmd)
	assert.Equal(t, 1, m.frame)
}
