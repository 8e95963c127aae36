package tui

import (
	"time"

	"github.com/bassamadnan/ordermail/pipeline"
)

// EventMsg carries one pipeline progress event into the model.
type EventMsg pipeline.Event

// RunDoneMsg is sent once the run has returned.
type RunDoneMsg struct {
	Result pipeline.Result
	Err    error
}

// Sent when the events channel is closed.
type eventsClosedMsg struct{}

type tickMsg struct{ Time time.Time }
