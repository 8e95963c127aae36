package cache

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bassamadnan/ordermail/order"
)

func sampleEntries() []Entry {
	return []Entry{
		{
			UID:     "101",
			Subject: "Your order shipped",
			From:    "orders@target.com",
			To:      "me@example.com",
			Date:    "2024-05-01T10:00:00Z",
			HTML:    "<p>shipped</p>",
			Extracted: order.Fact{
				OrderID:         "123456789012345",
				TrackingNumbers: []string{"1Z999AA10123456784"},
				Retailer:        "target",
			},
		},
		{
			UID:       "102",
			Subject:   "Delivered",
			From:      "orders@target.com",
			To:        "me@example.com",
			Date:      "2024-05-03T10:00:00Z",
			Extracted: order.Fact{OrderID: "123456789012345", Retailer: "target"},
		},
	}
}

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	stores := map[string]Store{}
	for _, backend := range []string{BackendJSON, BackendSQLite} {
		s, err := Open(backend, t.TempDir(), zap.NewNop())
		require.NoError(t, err, backend)
		t.Cleanup(func() { _ = s.Close() })
		stores[backend] = s
	}
	return stores
}

func TestStoreAppendAndLoad(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, s.Load("me@example.com"))

			added, err := s.Append("me@example.com", sampleEntries())
			require.NoError(t, err)
			assert.Equal(t, 2, added)

			got := s.Load("me@example.com")
			require.Len(t, got, 2)
			assert.Equal(t, "101", got[0].UID)
			assert.Equal(t, "102", got[1].UID)
			assert.Equal(t, []string{"1Z999AA10123456784"}, got[0].Extracted.TrackingNumbers)
			assert.True(t, s.Contains("me@example.com", "102"))
			assert.False(t, s.Contains("me@example.com", "999"))
			assert.False(t, s.Contains("other@example.com", "101"))
		})
	}
}

func TestStoreIgnoresKnownUIDs(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Append("me@example.com", sampleEntries())
			require.NoError(t, err)

			again := sampleEntries()
			again = append(again, Entry{UID: "103"}, Entry{UID: "103", Subject: "dup in batch"})
			added, err := s.Append("me@example.com", again)
			require.NoError(t, err)
			assert.Equal(t, 1, added)

			got := s.Load("me@example.com")
			require.Len(t, got, 3)
			assert.Equal(t, "103", got[2].UID)
			assert.Empty(t, got[2].Subject, "first copy of a repeated UID wins")
		})
	}
}

func TestStoreAccountsAndClear(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Append("b@example.com", sampleEntries()[:1])
			require.NoError(t, err)
			_, err = s.Append("A@example.com", sampleEntries()[1:])
			require.NoError(t, err)

			assert.Equal(t, []string{"a_example.com", "b_example.com"}, s.Accounts())

			require.NoError(t, s.Clear())
			assert.Empty(t, s.Accounts())
			assert.Empty(t, s.Load("b@example.com"))
		})
	}
}

func TestJSONStoreLayout(t *testing.T) {
	dir := t.TempDir()
	s := NewJSONStore(dir, nil)
	_, err := s.Append("me@example.com", sampleEntries())
	require.NoError(t, err)

	path := filepath.Join(dir, "emails_me_example.com.json")
	assert.Equal(t, path, s.Path("me@example.com"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"order_number": "123456789012345"`)
	assert.Contains(t, string(data), `"ship_to": null`)

	// A fresh store reads what the first one wrote.
	reopened := NewJSONStore(dir, nil)
	assert.Len(t, reopened.Load("me@example.com"), 2)
}

func TestJSONStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s := NewJSONStore(dir, zap.NewNop())
	path := s.Path("me@example.com")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	assert.Empty(t, s.Load("me@example.com"))

	added, err := s.Append("me@example.com", sampleEntries()[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	aside, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, aside, 1)
	assert.Len(t, NewJSONStore(dir, nil).Load("me@example.com"), 1)
}

func TestJSONStoreSeesWritesFromAnotherStore(t *testing.T) {
	dir := t.TempDir()
	reader := NewJSONStore(dir, nil)
	writer := NewJSONStore(dir, nil)

	_, err := writer.Append("me@example.com", sampleEntries()[:1])
	require.NoError(t, err)
	require.Len(t, reader.Load("me@example.com"), 1)
	assert.False(t, reader.Contains("me@example.com", "102"))

	_, err = writer.Append("me@example.com", sampleEntries()[1:])
	require.NoError(t, err)
	assert.Len(t, reader.Load("me@example.com"), 2)
	assert.True(t, reader.Contains("me@example.com", "102"))

	require.NoError(t, os.Remove(reader.Path("me@example.com")))
	assert.Empty(t, reader.Load("me@example.com"))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("redis", t.TempDir(), nil)
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}

func TestAccountKey(t *testing.T) {
	assert.Equal(t, "me_example.com", AccountKey(" Me@Example.com "))
	assert.Equal(t, "me_example.com", AccountKey(AccountKey("me@example.com")))
}

func TestSQLiteStoreLoadQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS cache_entries")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLiteStore(db, nil)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT uid, subject")).
		WithArgs("me_example.com").
		WillReturnError(errors.New("disk I/O error"))
	assert.Empty(t, s.Load("me@example.com"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStoreAppendRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS cache_entries")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLiteStore(db, nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(seq), 0)")).
		WithArgs("me_example.com").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cache_entries")).
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	added, err := s.Append("me@example.com", sampleEntries()[:1])
	assert.Error(t, err)
	assert.Zero(t, added)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStoreMigrateFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE")).WillReturnError(errors.New("read-only"))
	_, err = NewSQLiteStore(db, nil)
	assert.Error(t, err)
}
