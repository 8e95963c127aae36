// Package report persists the reconciled orders and cancellations tables as
// CSV files.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/bassamadnan/ordermail/atomicfile"
	"github.com/bassamadnan/ordermail/order"
)

const (
	OrdersFile        = "report_orders.csv"
	CancellationsFile = "report_cancellations.csv"
	LockFile          = ".report.lock"
)

// ErrLocked is returned by Lock when the context ends before the lock is
// acquired.
var ErrLocked = errors.New("report store is locked by another process")

// Paths locates the files of one report store.
type Paths struct {
	Orders        string
	Cancellations string
	Lock          string
}

// DefaultPaths places all files directly under dir.
func DefaultPaths(dir string) Paths {
	return Paths{
		Orders:        filepath.Join(dir, OrdersFile),
		Cancellations: filepath.Join(dir, CancellationsFile),
		Lock:          filepath.Join(dir, LockFile),
	}
}

type Store struct {
	paths  Paths
	logger *zap.Logger
}

func New(paths Paths, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{paths: paths, logger: logger.Named("report")}
}

func (s *Store) Paths() Paths { return s.paths }

// OrderTable is the orders table in file order with an index by order id.
type OrderTable struct {
	rows  []order.Record
	index map[string]int
}

func NewOrderTable(rows ...order.Record) *OrderTable {
	t := &OrderTable{index: make(map[string]int)}
	for _, r := range rows {
		t.Put(r)
	}
	return t
}

// Rows returns a copy of the rows in order.
func (t *OrderTable) Rows() []order.Record {
	out := make([]order.Record, len(t.rows))
	copy(out, t.rows)
	return out
}

func (t *OrderTable) Get(id string) (order.Record, bool) {
	i, ok := t.index[id]
	if !ok {
		return order.Record{}, false
	}
	return t.rows[i], true
}

// Put replaces the row with the same order id in place, or appends.
func (t *OrderTable) Put(r order.Record) {
	if i, ok := t.index[r.OrderID]; ok {
		t.rows[i] = r
		return
	}
	t.index[r.OrderID] = len(t.rows)
	t.rows = append(t.rows, r)
}

func (t *OrderTable) Len() int { return len(t.rows) }

// LoadOrders reads the orders table. A missing file is an empty table; a
// file that cannot be parsed is moved aside, logged and treated as empty.
func (s *Store) LoadOrders() (*OrderTable, error) {
	records, err := s.read(s.paths.Orders)
	if err != nil {
		return nil, err
	}
	table := NewOrderTable()
	for _, rec := range records {
		r := order.Record{
			OrderID:         rec["order_number"],
			TrackingNumbers: rec["tracking_numbers"],
			ShipTo:          rec["ship_to"],
			SentTo:          rec["sent_to"],
			SentDate:        rec["sent_date"],
			Status:          order.ParseStatus(rec["status"]),
			Retailer:        rec["retailer"],
		}
		if _, dup := table.Get(r.OrderID); dup {
			s.logger.Warn("duplicate order row, keeping the first", zap.String("order_number", r.OrderID))
			continue
		}
		table.Put(r)
	}
	return table, nil
}

// RewriteOrders replaces the orders table with rows.
func (s *Store) RewriteOrders(rows []order.Record) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(order.OrderColumns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write(r.Values()); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode orders: %w", err)
	}
	if err := atomicfile.Write(s.paths.Orders, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.paths.Orders, err)
	}
	s.logger.Debug("rewrote orders table", zap.String("path", s.paths.Orders), zap.Int("rows", len(rows)))
	return nil
}

func (s *Store) LoadCancellations() ([]order.Cancellation, error) {
	records, err := s.read(s.paths.Cancellations)
	if err != nil {
		return nil, err
	}
	out := make([]order.Cancellation, 0, len(records))
	for _, rec := range records {
		out = append(out, order.Cancellation{
			OrderID:  rec["order_number"],
			SentTo:   rec["sent_to"],
			SentDate: rec["sent_date"],
			Reason:   rec["reason"],
			Retailer: rec["retailer"],
		})
	}
	return out, nil
}

func (s *Store) LoadCancelledIDs() (map[string]struct{}, error) {
	rows, err := s.LoadCancellations()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		ids[r.OrderID] = struct{}{}
	}
	return ids, nil
}

// AppendCancellation appends rows to the cancellations table, writing the
// header first when the file is new or empty. Rows for an existing table
// follow that table's header, so a table written with fewer columns stays
// well formed; values for columns it lacks are dropped with a warning.
func (s *Store) AppendCancellation(rows ...order.Cancellation) error {
	if len(rows) == 0 {
		return nil
	}
	path := s.paths.Cancellations
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	columns := order.CancellationColumns
	if info.Size() == 0 {
		if err := w.Write(columns); err != nil {
			return err
		}
	} else {
		if columns, err = s.existingColumns(f, path); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := w.Write(project(columns, r)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	s.logger.Debug("appended cancellations", zap.String("path", path), zap.Int("rows", len(rows)))
	return f.Sync()
}

// existingColumns reads the normalized header of an existing table.
func (s *Store) existingColumns(f *os.File, path string) ([]string, error) {
	header, err := csv.NewReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	columns := make([]string, len(header))
	present := make(map[string]bool, len(header))
	for i, h := range header {
		columns[i] = normalizeColumn(h)
		present[columns[i]] = true
	}
	if !present["order_number"] {
		return nil, fmt.Errorf("%s: %w", path, errNoOrderColumn)
	}
	var missing []string
	for _, c := range order.CancellationColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		s.logger.Warn("cancellations table has an older header, dropping columns",
			zap.String("path", path),
			zap.Strings("missing", missing))
	}
	return columns, nil
}

// project lays c out in the given column order; unknown columns are empty.
func project(columns []string, c order.Cancellation) []string {
	values := make(map[string]string, len(order.CancellationColumns))
	for i, v := range c.Values() {
		values[order.CancellationColumns[i]] = v
	}
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = values[col]
	}
	return out
}

// Lock takes the cross-process lock guarding both tables. The returned func
// releases it.
func (s *Store) Lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.paths.Lock), 0o755); err != nil {
		return nil, err
	}
	fl := flock.New(s.paths.Lock)
	locked, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrLocked, ctx.Err())
		}
		return nil, fmt.Errorf("lock %s: %w", s.paths.Lock, err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.logger.Warn("could not release report lock", zap.Error(err))
		}
	}, nil
}

// read returns the data rows of a table keyed by normalized column name.
func (s *Store) read(path string) ([]map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	records, err := parse(data)
	if err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if rerr := os.Rename(path, aside); rerr != nil {
			s.logger.Warn("could not move corrupt table aside", zap.String("path", path), zap.Error(rerr))
		}
		s.logger.Warn("corrupt table treated as empty",
			zap.String("path", path),
			zap.String("moved_to", aside),
			zap.Error(err))
		return nil, nil
	}
	return records, nil
}

var errNoOrderColumn = errors.New("missing order_number column")

func parse(data []byte) ([]map[string]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	columns := make([]string, len(header))
	hasOrder := false
	for i, h := range header {
		columns[i] = normalizeColumn(h)
		if columns[i] == "order_number" {
			hasOrder = true
		}
	}
	if !hasOrder {
		return nil, errNoOrderColumn
	}

	var out []map[string]string
	for {
		fields, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		rec := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(fields) {
				rec[col] = strings.TrimSpace(fields[i])
			}
		}
		if rec["order_number"] == "" {
			continue
		}
		out = append(out, rec)
	}
}

// normalizeColumn maps legacy headers such as "Order Number" or
// a BOM-prefixed "order_number" onto the current names.
func normalizeColumn(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	switch h {
	case "order_id", "order":
		return "order_number"
	case "tracking", "tracking_number":
		return "tracking_numbers"
	case "date":
		return "sent_date"
	case "cancellation_reason":
		return "reason"
	}
	return h
}
