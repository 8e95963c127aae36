package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bassamadnan/ordermail/order"
	"github.com/bassamadnan/ordermail/reconcile"
	"github.com/bassamadnan/ordermail/report"
)

type fakeBackend struct {
	refreshes int
	cleared   int
	err       error
	onRefresh func()
}

func (b *fakeBackend) Refresh(context.Context) (reconcile.Summary, error) {
	b.refreshes++
	if b.onRefresh != nil {
		b.onRefresh()
	}
	return reconcile.Summary{Created: 1}, b.err
}

func (b *fakeBackend) ClearCache() error {
	b.cleared++
	return b.err
}

func seedStore(t *testing.T) *report.Store {
	t.Helper()
	store := report.New(report.DefaultPaths(t.TempDir()), nil)
	require.NoError(t, store.RewriteOrders([]order.Record{
		{OrderID: "1111111111", TrackingNumbers: "1Z999AA10123456784, 9400111899223100012345", SentTo: "me@example.com",
			SentDate: "2025-03-09T10:00:00Z", Status: order.StatusShipped, Retailer: "target"},
		{OrderID: "2222222222", SentTo: "me@example.com", SentDate: "2025-03-08T10:00:00Z", Status: order.StatusOrdered, Retailer: "walmart"},
	}))
	require.NoError(t, store.AppendCancellation(order.Cancellation{
		OrderID: "3333333333", SentTo: "me@example.com", SentDate: "2025-03-07T10:00:00Z", Reason: "Out of stock", Retailer: "target",
	}))
	return store
}

func newTestApp(t *testing.T, store *report.Store, backend Backend) *ReviewApp {
	t.Helper()
	a := NewReviewApp(context.Background(), store, backend, nil)
	a.async = func(f func()) { f() }
	a.queue = func(f func()) { f() }
	a.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	a.Reload()
	return a
}

func key(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func frontPage(a *ReviewApp) string {
	name, _ := a.pages.GetFrontPage()
	return name
}

func TestReviewAppLoadsTables(t *testing.T) {
	a := newTestApp(t, seedStore(t), &fakeBackend{})

	assert.Equal(t, 3, a.orders.GetRowCount(), "header plus two orders")
	assert.Equal(t, 2, a.cancellations.GetRowCount())
	assert.Equal(t, "Order Number", a.orders.GetCell(0, 0).Text)
	assert.Equal(t, "1111111111", a.orders.GetCell(1, 0).Text)
	assert.Equal(t, "Mar 09", a.orders.GetCell(1, 4).Text)
	assert.Equal(t, "1111111111", a.orders.SelectedKey())

	text := a.overview.GetText(true)
	assert.Contains(t, text, "Orders: 2")
	assert.Contains(t, text, "Cancellations: 1")
	assert.Contains(t, text, "33.3%")
}

func TestReviewAppHideAndSort(t *testing.T) {
	a := newTestApp(t, seedStore(t), &fakeBackend{})

	assert.Nil(t, a.handleKey(key('x')))
	assert.Equal(t, 2, a.orders.GetRowCount())
	assert.Equal(t, "2222222222", a.orders.SelectedKey())
	assert.Contains(t, a.orders.GetTitle(), "1 hidden")

	a.Reload()
	assert.Equal(t, 2, a.orders.GetRowCount(), "hidden rows stay hidden across reloads")

	assert.Nil(t, a.handleKey(key('u')))
	assert.Equal(t, 3, a.orders.GetRowCount())

	a.handleKey(key('s'))
	a.handleKey(key('S'))
	assert.Equal(t, "2222222222", a.orders.GetCell(1, 0).Text)
	assert.Contains(t, a.statusBar.GetText(true), "order_number desc")
}

func TestReviewAppCopyTracking(t *testing.T) {
	var copied string
	orig := clipboardWriteAll
	clipboardWriteAll = func(s string) error { copied = s; return nil }
	t.Cleanup(func() { clipboardWriteAll = orig })

	a := newTestApp(t, seedStore(t), &fakeBackend{})
	a.handleKey(key('c'))
	assert.Equal(t, "1Z999AA10123456784\n9400111899223100012345", copied)
	assert.Contains(t, a.statusBar.GetText(true), "copied tracking for 1111111111")

	copied = ""
	a.orders.Select(2, 0)
	a.handleKey(key('c'))
	assert.Empty(t, copied)
	assert.Contains(t, a.statusBar.GetText(true), "no tracking numbers")

	clipboardWriteAll = func(string) error { return errors.New("no clipboard") }
	a.orders.Select(1, 0)
	a.handleKey(key('c'))
	assert.Contains(t, a.statusBar.GetText(true), "could not copy")
}

func TestReviewAppDetail(t *testing.T) {
	a := newTestApp(t, seedStore(t), &fakeBackend{})
	a.showDetail(a.orders)
	assert.Equal(t, PageDetail, frontPage(a))
	text := a.detail.Text()
	assert.Contains(t, text, "1111111111")
	assert.Contains(t, text, "SHIPPED")
	assert.Contains(t, text, "9400111899223100012345")

	assert.Nil(t, a.handleKey(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)))
	assert.Equal(t, PageDashboard, frontPage(a))
}

func TestReviewAppTabSwitchesTable(t *testing.T) {
	a := newTestApp(t, seedStore(t), &fakeBackend{})
	a.handleKey(tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone))
	assert.Same(t, a.cancellations, a.focused)
	a.handleKey(key('c'))
	assert.Contains(t, a.statusBar.GetText(true), "orders table")
}

func TestReviewAppRefreshReloads(t *testing.T) {
	store := seedStore(t)
	backend := &fakeBackend{}
	backend.onRefresh = func() {
		table, err := store.LoadOrders()
		require.NoError(t, err)
		table.Put(order.Record{OrderID: "4444444444", Status: order.StatusOrdered, Retailer: "target"})
		require.NoError(t, store.RewriteOrders(table.Rows()))
	}
	a := newTestApp(t, store, backend)

	a.handleKey(key('r'))
	assert.Equal(t, 1, backend.refreshes)
	assert.False(t, a.busy)
	assert.Equal(t, 4, a.orders.GetRowCount())
	assert.Contains(t, a.statusBar.GetText(true), "refreshed: 1 new")

	backend.onRefresh = nil
	backend.err = errors.New("locked")
	a.handleKey(key('r'))
	assert.Contains(t, a.statusBar.GetText(true), "refresh failed: locked")
}

func TestReviewAppClearCacheNeedsConfirmation(t *testing.T) {
	backend := &fakeBackend{}
	a := newTestApp(t, seedStore(t), backend)

	a.handleKey(key('C'))
	assert.Equal(t, PageConfirm, frontPage(a))
	assert.Equal(t, 0, backend.cleared)
	assert.NotNil(t, a.handleKey(key('q')), "keys go to the dialog while it is open")

	a.pages.RemovePage(PageConfirm)
	a.clearCache()
	assert.Equal(t, 1, backend.cleared)
	assert.Contains(t, a.statusBar.GetText(true), "cache cleared")
}
