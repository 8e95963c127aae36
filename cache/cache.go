// Package cache keeps every message fact ever seen for an account so the
// fetch step can skip known UIDs and reconciliation can replay history.
package cache

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bassamadnan/ordermail/order"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown cache backend")

// Entry is one cached message. Date is ISO-8601 in UTC.
type Entry struct {
	UID       string     `json:"uid"`
	Subject   string     `json:"subject"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Date      string     `json:"date"`
	HTML      string     `json:"html"`
	Extracted order.Fact `json:"extracted"`
}

// FormatDate renders t the way Entry.Date stores it.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Time parses Date. ok is false for empty or malformed values.
func (e Entry) Time() (t time.Time, ok bool) {
	if e.Date == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, e.Date)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05.999999-07:00", e.Date)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t, true
}

// Store is an append-only, UID-keyed log of entries per account.
//
// Load never fails: a missing or unreadable backing store is logged and
// reported as empty. Append ignores entries whose UID is already stored for
// the account, including repeats within the same batch.
type Store interface {
	Load(account string) []Entry
	Contains(account, uid string) bool
	Append(account string, entries []Entry) (added int, err error)
	Accounts() []string
	Clear() error
	Close() error
}

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Open builds the named backend rooted at dir.
func Open(backend, dir string, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cache")
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendJSON:
		return NewJSONStore(dir, logger), nil
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dir, "cache.db"), logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

// AccountKey normalizes an account address into a file-safe key, e.g.
// "me@example.com" becomes "me_example.com". It is idempotent.
func AccountKey(account string) string {
	r := strings.NewReplacer("@", "_", "/", "_", "\\", "_", ":", "_")
	return r.Replace(strings.ToLower(strings.TrimSpace(account)))
}

func dedupe(known map[string]struct{}, entries []Entry) []Entry {
	fresh := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.UID == "" {
			continue
		}
		if _, ok := known[e.UID]; ok {
			continue
		}
		known[e.UID] = struct{}{}
		fresh = append(fresh, e)
	}
	return fresh
}
