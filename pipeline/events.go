package pipeline

import (
	"time"

	"github.com/bassamadnan/ordermail/reconcile"
)

type EventKind int

const (
	AccountStarted EventKind = iota
	Fetched
	AccountFinished
	AccountFailed
	RunFinished
)

func (k EventKind) String() string {
	switch k {
	case AccountStarted:
		return "account_started"
	case Fetched:
		return "fetched"
	case AccountFinished:
		return "account_finished"
	case AccountFailed:
		return "account_failed"
	case RunFinished:
		return "run_finished"
	}
	return "unknown"
}

// Event reports run progress. Index is the zero-based account position and
// Total the number of accounts in the run.
type Event struct {
	RunID   string
	Kind    EventKind
	Account string
	Index   int
	Total   int
	// Count is the number of fetched messages for Fetched and the number of
	// new cache entries for AccountFinished.
	Count   int
	Summary reconcile.Summary
	Err     error
	Time    time.Time
}
