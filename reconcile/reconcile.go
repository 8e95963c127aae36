// Package reconcile folds cached message facts into the persisted order
// tables. A status only ever moves up in rank, DELIVERED and CANCELLED are
// final, and re-running over an unchanged cache has no effect.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bassamadnan/ordermail/cache"
	"github.com/bassamadnan/ordermail/extract"
	"github.com/bassamadnan/ordermail/htmltext"
	"github.com/bassamadnan/ordermail/order"
	"github.com/bassamadnan/ordermail/report"
	"github.com/bassamadnan/ordermail/retailer"
)

// Group is the cache entries that share one order id, in cache order.
type Group struct {
	OrderID string
	Entries []cache.Entry
}

// GroupEntries groups entries by order id in order of first appearance.
// Entries without an order id are dropped.
func GroupEntries(entries []cache.Entry) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, e := range entries {
		id := e.Extracted.OrderID
		if id == "" {
			continue
		}
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, Group{OrderID: id})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}
	return groups
}

// Aggregate is everything a group contributes to its order row.
type Aggregate struct {
	OrderID  string
	Status   order.Status
	Tracking string
	ShipTo   string
	SentTo   string
	SentDate string
	Retailer string
	// Reason is the first cancellation fact's reason.
	Reason string
}

func (a Aggregate) record() order.Record {
	return order.Record{
		OrderID:         a.OrderID,
		TrackingNumbers: a.Tracking,
		ShipTo:          a.ShipTo,
		SentTo:          a.SentTo,
		SentDate:        a.SentDate,
		Status:          a.Status,
		Retailer:        a.Retailer,
	}
}

func (a Aggregate) cancellation() order.Cancellation {
	reason := a.Reason
	if reason == "" {
		reason = extract.UnspecifiedReason
	}
	return order.Cancellation{
		OrderID:  a.OrderID,
		SentTo:   a.SentTo,
		SentDate: a.SentDate,
		Reason:   reason,
		Retailer: a.Retailer,
	}
}

type Reconciler struct {
	registry *retailer.Registry
	store    *report.Store
	logger   *zap.Logger
}

func New(registry *retailer.Registry, store *report.Store, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{registry: registry, store: store, logger: logger.Named("reconcile")}
}

// Aggregate computes the observed status and merged fields of g.
func (r *Reconciler) Aggregate(g Group) Aggregate {
	agg := Aggregate{OrderID: g.OrderID}
	var (
		tracking  []string
		latest    time.Time
		cancelled bool
	)
	for _, e := range g.Entries {
		f := e.Extracted
		tracking = append(tracking, f.TrackingNumbers...)
		if agg.ShipTo == "" {
			agg.ShipTo = f.ShipTo
		}
		if agg.SentTo == "" {
			agg.SentTo = e.To
		}
		if agg.Retailer == "" {
			agg.Retailer = f.Retailer
		}
		if f.IsCancellation && !cancelled {
			cancelled = true
			agg.Reason = f.CancellationReason
		}
		if t, ok := e.Time(); ok && t.After(latest) {
			latest = t
		}
	}
	agg.Tracking = order.JoinTracking(tracking)
	agg.SentDate = cache.FormatDate(latest)
	if agg.Retailer == "" {
		agg.Retailer = r.registry.DefaultKey()
	}
	agg.Status = r.observe(g, agg.Retailer, cancelled, agg.Tracking != "")
	return agg
}

// observe ranks a group. Cancellation is checked first and always wins.
func (r *Reconciler) observe(g Group, retailerKey string, cancelled, hasTracking bool) order.Status {
	if cancelled {
		return order.StatusCancelled
	}
	rule, ok := r.registry.Lookup(retailerKey)
	if !ok {
		rule = r.registry.Default()
	}
	texts := make([]string, 0, len(g.Entries))
	for _, e := range g.Entries {
		texts = append(texts, e.Subject+"\n"+htmltext.Convert(e.HTML))
	}
	for _, text := range texts {
		if retailer.ContainsAny(text, rule.DeliveredKeywords) {
			return order.StatusDelivered
		}
	}
	if hasTracking {
		return order.StatusShipped
	}
	for _, text := range texts {
		if retailer.ContainsAny(text, rule.ShippedKeywords) {
			return order.StatusShipped
		}
	}
	return order.StatusOrdered
}

// Outcome is what Merge did with one aggregate.
type Outcome int

const (
	Unchanged Outcome = iota
	Created
	Advanced
	// CancelledOnly means the order was first seen cancelled and only a
	// cancellation row was written.
	CancelledOnly
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Advanced:
		return "advanced"
	case CancelledOnly:
		return "cancelled_only"
	}
	return "unchanged"
}

// Merge applies agg to the orders table and the set of cancelled ids. It
// returns the cancellation row to append, if any; cancelled is updated to
// include it.
func Merge(table *report.OrderTable, cancelled map[string]struct{}, agg Aggregate) (Outcome, *order.Cancellation) {
	newCancellation := func() *order.Cancellation {
		if _, ok := cancelled[agg.OrderID]; ok {
			return nil
		}
		cancelled[agg.OrderID] = struct{}{}
		c := agg.cancellation()
		return &c
	}

	existing, ok := table.Get(agg.OrderID)
	if !ok {
		if _, done := cancelled[agg.OrderID]; done {
			// Cancelled before it was ever recorded as an order. The
			// cancellation is terminal, so later notices do not create a row.
			return Unchanged, nil
		}
		if agg.Status == order.StatusCancelled {
			return CancelledOnly, newCancellation()
		}
		table.Put(agg.record())
		return Created, nil
	}

	if existing.Status.Terminal() || agg.Status.Rank() <= existing.Status.Rank() {
		return Unchanged, nil
	}
	updated := existing
	updated.Status = agg.Status
	overwrite(&updated.TrackingNumbers, agg.Tracking)
	overwrite(&updated.ShipTo, agg.ShipTo)
	overwrite(&updated.SentTo, agg.SentTo)
	overwrite(&updated.SentDate, agg.SentDate)
	overwrite(&updated.Retailer, agg.Retailer)
	table.Put(updated)

	if agg.Status == order.StatusCancelled {
		return Advanced, newCancellation()
	}
	return Advanced, nil
}

func overwrite(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Summary reports what one reconciliation pass did.
type Summary struct {
	Groups               int
	Created              int
	Advanced             int
	CancelledOnly        int
	Unchanged            int
	CancellationsWritten int
	// ByStatus counts the rows of the orders table after the pass.
	ByStatus map[order.Status]int
}

func (s Summary) Changed() bool {
	return s.Created > 0 || s.Advanced > 0 || s.CancellationsWritten > 0
}

// Run reconciles entries into the report store while holding its lock.
func (r *Reconciler) Run(ctx context.Context, entries []cache.Entry) (Summary, error) {
	release, err := r.store.Lock(ctx)
	if err != nil {
		return Summary{}, err
	}
	defer release()

	table, err := r.store.LoadOrders()
	if err != nil {
		return Summary{}, fmt.Errorf("load orders: %w", err)
	}
	cancelled, err := r.store.LoadCancelledIDs()
	if err != nil {
		return Summary{}, fmt.Errorf("load cancellations: %w", err)
	}

	groups := GroupEntries(entries)
	summary := Summary{Groups: len(groups), ByStatus: make(map[order.Status]int)}
	var appended []order.Cancellation
	for _, g := range groups {
		agg := r.Aggregate(g)
		outcome, c := Merge(table, cancelled, agg)
		switch outcome {
		case Created:
			summary.Created++
		case Advanced:
			summary.Advanced++
		case CancelledOnly:
			summary.CancelledOnly++
		default:
			summary.Unchanged++
		}
		if c != nil {
			appended = append(appended, *c)
		}
		if outcome != Unchanged {
			r.logger.Debug("order merged",
				zap.String("order_number", agg.OrderID),
				zap.String("status", string(agg.Status)),
				zap.Stringer("outcome", outcome))
		}
	}

	// Cancellations go first so an interrupted pass is repaired by the next.
	if err := r.store.AppendCancellation(appended...); err != nil {
		return Summary{}, fmt.Errorf("append cancellations: %w", err)
	}
	summary.CancellationsWritten = len(appended)
	rows := table.Rows()
	if err := r.store.RewriteOrders(rows); err != nil {
		return Summary{}, fmt.Errorf("rewrite orders: %w", err)
	}
	for _, row := range rows {
		summary.ByStatus[row.Status]++
	}

	r.logger.Info("reconciled",
		zap.Int("entries", len(entries)),
		zap.Int("orders", len(groups)),
		zap.Int("created", summary.Created),
		zap.Int("advanced", summary.Advanced),
		zap.Int("cancellations", summary.CancellationsWritten))
	return summary, nil
}
