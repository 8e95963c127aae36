package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bassamadnan/ordermail/order"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(DefaultPaths(filepath.Join(t.TempDir(), "output")), nil)
}

func TestLoadMissingTables(t *testing.T) {
	s := newStore(t)
	table, err := s.LoadOrders()
	require.NoError(t, err)
	assert.Zero(t, table.Len())

	ids, err := s.LoadCancelledIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRewriteOrdersRoundTrip(t *testing.T) {
	s := newStore(t)
	rows := []order.Record{
		{OrderID: "1002", TrackingNumbers: "1Z999AA10123456784", ShipTo: "Jane Doe, 1 Main St, Springfield, IL, 62701", SentTo: "me@example.com", SentDate: "2024-05-03T10:00:00Z", Status: order.StatusDelivered, Retailer: "target"},
		{OrderID: "1001", Status: order.StatusOrdered, Retailer: "walmart"},
	}
	require.NoError(t, s.RewriteOrders(rows))

	data, err := os.ReadFile(s.Paths().Orders)
	require.NoError(t, err)
	assert.Contains(t, string(data), "order_number,tracking_numbers,ship_to,sent_to,sent_date,status,retailer\n")

	table, err := s.LoadOrders()
	require.NoError(t, err)
	if diff := cmp.Diff(rows, table.Rows()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	got, ok := table.Get("1001")
	require.True(t, ok)
	assert.Equal(t, "walmart", got.Retailer)

	// Rewriting the same rows is byte-identical.
	require.NoError(t, s.RewriteOrders(table.Rows()))
	again, err := os.ReadFile(s.Paths().Orders)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestLoadOrdersLegacyHeader(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Paths().Orders), 0o755))
	legacy := "\ufeffOrder Number,Tracking Numbers,Ship To,Sent To,Sent Date,Status\n" +
		"555,\"1Z1, 1Z2\",,a@b.com,2024-01-01T00:00:00Z,shipped\n" +
		",,,,,\n"
	require.NoError(t, os.WriteFile(s.Paths().Orders, []byte(legacy), 0o644))

	table, err := s.LoadOrders()
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	r, _ := table.Get("555")
	assert.Equal(t, order.StatusShipped, r.Status)
	assert.Equal(t, []string{"1Z1", "1Z2"}, order.SplitTracking(r.TrackingNumbers))
	assert.Empty(t, r.Retailer)
}

func TestLoadOrdersCorruptIsMovedAside(t *testing.T) {
	s := newStore(t)
	path := s.Paths().Orders
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("foo,bar\n1,2\n"), 0o644))

	table, err := s.LoadOrders()
	require.NoError(t, err)
	assert.Zero(t, table.Len())

	aside, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, aside, 1)
}

func TestAppendCancellationWritesHeaderOnce(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.AppendCancellation(order.Cancellation{OrderID: "1", Reason: "Out of stock", Retailer: "target"}))
	require.NoError(t, s.AppendCancellation(order.Cancellation{OrderID: "2", Reason: "Reason, with comma", Retailer: "target"}))

	data, err := os.ReadFile(s.Paths().Cancellations)
	require.NoError(t, err)
	assert.Equal(t,
		"order_number,sent_to,sent_date,reason,retailer\n"+
			"1,,,Out of stock,target\n"+
			"2,,,\"Reason, with comma\",target\n",
		string(data))

	ids, err := s.LoadCancelledIDs()
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"1": {}, "2": {}}, ids)

	rows, err := s.LoadCancellations()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Reason, with comma", rows[1].Reason)
}

func TestAppendCancellationFollowsLegacyHeader(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s := New(DefaultPaths(t.TempDir()), zap.New(core))
	legacy := "Order Number,Sent To,Sent Date,Reason\n1,me@example.com,2024-05-01T10:00:00Z,Out of stock\n"
	require.NoError(t, os.WriteFile(s.Paths().Cancellations, []byte(legacy), 0o644))

	require.NoError(t, s.AppendCancellation(order.Cancellation{
		OrderID:  "2",
		SentTo:   "me@example.com",
		SentDate: "2024-05-02T10:00:00Z",
		Reason:   "Payment issue",
		Retailer: "target",
	}))

	data, err := os.ReadFile(s.Paths().Cancellations)
	require.NoError(t, err)
	assert.Equal(t, legacy+"2,me@example.com,2024-05-02T10:00:00Z,Payment issue\n", string(data))

	rows, err := s.LoadCancellations()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Payment issue", rows[1].Reason)
	assert.Empty(t, rows[1].Retailer)
	assert.Equal(t, 1, logs.FilterMessage("cancellations table has an older header, dropping columns").Len())
}

func TestAppendCancellationNothingToWrite(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.AppendCancellation())
	_, err := os.Stat(s.Paths().Cancellations)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLockIsExclusive(t *testing.T) {
	s := newStore(t)
	release, err := s.Lock(context.Background())
	require.NoError(t, err)

	other := New(s.Paths(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = other.Lock(ctx)
	assert.ErrorIs(t, err, ErrLocked)

	release()
	release2, err := other.Lock(context.Background())
	require.NoError(t, err)
	release2()
}

func TestOverview(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.RewriteOrders([]order.Record{
		{OrderID: "1", Status: order.StatusShipped, Retailer: "target"},
		{OrderID: "2", Status: order.StatusDelivered, Retailer: "target"},
		{OrderID: "3", Status: order.StatusDelivered, Retailer: "amazon"},
	}))
	require.NoError(t, s.AppendCancellation(order.Cancellation{OrderID: "4", Retailer: "target"}))

	ov, err := s.Overview()
	require.NoError(t, err)
	assert.Equal(t, 3, ov.Orders)
	assert.Equal(t, 1, ov.Cancellations)
	assert.Equal(t, 4, ov.Total)
	assert.InDelta(t, 25.0, ov.CancellationRate, 0.001)
	assert.Equal(t, 2, ov.ByStatus[order.StatusDelivered])
	assert.Equal(t, 3, ov.ByRetailer["target"])
}

func TestSummarizeEmpty(t *testing.T) {
	ov := Summarize(nil, nil)
	assert.Zero(t, ov.Total)
	assert.Zero(t, ov.CancellationRate)
}
