package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bassamadnan/ordermail/pipeline"
)

type accountState int

const (
	statePending accountState = iota
	stateFetching
	stateReconciling
	stateDone
	stateFailed
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const tickInterval = 120 * time.Millisecond

type accountProgress struct {
	email   string
	state   accountState
	fetched int
	added   int
	created int
	updated int
	cancels int
	err     error
}

// ProgressModel shows a scan while it runs, one line per account.
type ProgressModel struct {
	accounts []accountProgress
	index    map[string]int
	events   <-chan pipeline.Event

	runID   string
	frame   int
	started time.Time
	elapsed time.Duration

	width    int
	done     bool
	quitting bool
	result   pipeline.Result
	err      error
}

func NewProgressModel(accounts []string, events <-chan pipeline.Event) ProgressModel {
	m := ProgressModel{
		events:  events,
		index:   make(map[string]int, len(accounts)),
		started: time.Now(),
	}
	for i, a := range accounts {
		m.accounts = append(m.accounts, accountProgress{email: a})
		m.index[strings.ToLower(a)] = i
	}
	return m
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(waitForEventCmd(m.events), tickCmd(tickInterval))
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case EventMsg:
		m.apply(pipeline.Event(msg))
		return m, waitForEventCmd(m.events)

	case eventsClosedMsg:
		return m, nil

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(spinnerFrames)
		m.elapsed = msg.Time.Sub(m.started)
		return m, tickCmd(tickInterval)

	case RunDoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m *ProgressModel) apply(e pipeline.Event) {
	if e.RunID != "" {
		m.runID = e.RunID
	}
	if e.Kind == pipeline.RunFinished {
		return
	}
	i, ok := m.index[strings.ToLower(e.Account)]
	if !ok {
		i = len(m.accounts)
		m.accounts = append(m.accounts, accountProgress{email: e.Account})
		m.index[strings.ToLower(e.Account)] = i
	}
	a := &m.accounts[i]
	switch e.Kind {
	case pipeline.AccountStarted:
		a.state = stateFetching
	case pipeline.Fetched:
		a.state = stateReconciling
		a.fetched = e.Count
	case pipeline.AccountFinished:
		a.state = stateDone
		a.added = e.Count
		a.created = e.Summary.Created
		a.updated = e.Summary.Advanced
		a.cancels = e.Summary.CancellationsWritten
	case pipeline.AccountFailed:
		a.state = stateFailed
		a.err = e.Err
	}
}

// Quitting reports whether the user asked to stop before the run ended.
func (m ProgressModel) Quitting() bool { return m.quitting && !m.done }

func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("ordermail scan"))
	if m.runID != "" {
		b.WriteString(" " + DimStyle.Render(m.runID[:min(8, len(m.runID))]))
	}
	b.WriteString("\n\n")

	width := m.width
	if width <= 0 {
		width = 80
	}
	for _, a := range m.accounts {
		b.WriteString(m.accountLine(a, width))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.done && m.err != nil:
		b.WriteString(StatusBarErrorStyle.Render(fmt.Sprintf("stopped: %v", m.err)))
	case m.done:
		b.WriteString(StatusBarSuccessStyle.Render(fmt.Sprintf("done in %s, %d failed", m.elapsed.Round(time.Second), len(m.result.Failed()))))
	case m.quitting:
		b.WriteString(StatusBarNormalStyle.Render("stopping after the current account..."))
	default:
		b.WriteString(DimStyle.Render(fmt.Sprintf("%s elapsed | q: stop after current account", m.elapsed.Round(time.Second))))
	}
	b.WriteString("\n")
	return lipgloss.NewStyle().MaxWidth(width).Render(b.String())
}

func (m ProgressModel) accountLine(a accountProgress, width int) string {
	name := fmt.Sprintf("%-30s", truncate(a.email, 30))
	switch a.state {
	case stateFetching:
		return RunningStyle.Render(spinnerFrames[m.frame]+" "+name) + DimStyle.Render(" fetching")
	case stateReconciling:
		return RunningStyle.Render(spinnerFrames[m.frame]+" "+name) + DimStyle.Render(fmt.Sprintf(" reconciling %d messages", a.fetched))
	case stateDone:
		return DoneStyle.Render("✓ "+name) + fmt.Sprintf(" %d fetched, %d cached, %d new, %d updated, %d cancelled",
			a.fetched, a.added, a.created, a.updated, a.cancels)
	case stateFailed:
		msg := ""
		if a.err != nil {
			msg = a.err.Error()
		}
		return FailedStyle.Render("✗ "+name) + " " + truncate(msg, max(width-34, 10))
	}
	return PendingStyle.Render("· " + name)
}

// RunProgress drives run under a bubbletea progress view. events must be
// the channel the runner was built with; RunProgress closes it once run
// returns. Quitting the view cancels the context given to run.
func RunProgress(ctx context.Context, accounts []string, events chan pipeline.Event,
	run func(context.Context) (pipeline.Result, error), opts ...tea.ProgramOption) (pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgressModel(accounts, events), append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)
	type outcome struct {
		res pipeline.Result
		err error
	}
	finished := make(chan outcome, 1)
	go func() {
		res, err := run(ctx)
		close(events)
		finished <- outcome{res, err}
		p.Send(RunDoneMsg{Result: res, Err: err})
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		cancel()
		out := <-finished
		return out.res, fmt.Errorf("progress view: %w", err)
	}
	cancel()
	out := <-finished
	return out.res, out.err
}
