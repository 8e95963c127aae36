package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/bassamadnan/ordermail/order"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps every account in one cache_entries table. The primary
// key on (account, uid) makes a repeated UID a no-op at the database level.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteStore(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func NewSQLiteStore(db *sql.DB, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		account TEXT NOT NULL,
		uid TEXT NOT NULL,
		seq INTEGER NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		sender TEXT NOT NULL DEFAULT '',
		recipient TEXT NOT NULL DEFAULT '',
		sent_date TEXT NOT NULL DEFAULT '',
		html TEXT NOT NULL DEFAULT '',
		extracted JSON,
		PRIMARY KEY (account, uid)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) Load(account string) []Entry {
	ctx := context.Background()
	key := AccountKey(account)
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, subject, sender, recipient, sent_date, html, extracted
		FROM cache_entries
		WHERE account = ?
		ORDER BY seq`, key)
	if err != nil {
		s.logger.Warn("could not read cache", zap.String("account", account), zap.Error(err))
		return []Entry{}
	}
	defer func() { _ = rows.Close() }()

	entries := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			extracted sql.NullString
		)
		if err := rows.Scan(&e.UID, &e.Subject, &e.From, &e.To, &e.Date, &e.HTML, &extracted); err != nil {
			s.logger.Warn("could not scan cache row", zap.String("account", account), zap.Error(err))
			return []Entry{}
		}
		if extracted.Valid && extracted.String != "" {
			var fact order.Fact
			if err := json.Unmarshal([]byte(extracted.String), &fact); err != nil {
				s.logger.Warn("bad extracted fact in cache",
					zap.String("account", account),
					zap.String("uid", e.UID),
					zap.Error(err))
			} else {
				e.Extracted = fact
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("could not read cache", zap.String("account", account), zap.Error(err))
		return []Entry{}
	}
	s.logger.Debug("loaded cache", zap.String("account", account), zap.Int("entries", len(entries)))
	return entries
}

func (s *SQLiteStore) Contains(account, uid string) bool {
	var one int
	err := s.db.QueryRowContext(context.Background(),
		`SELECT 1 FROM cache_entries WHERE account = ? AND uid = ?`,
		AccountKey(account), uid).Scan(&one)
	return err == nil
}

func (s *SQLiteStore) Append(account string, entries []Entry) (int, error) {
	fresh := dedupe(make(map[string]struct{}), entries)
	if len(fresh) == 0 {
		return 0, nil
	}
	ctx := context.Background()
	key := AccountKey(account)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin cache append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM cache_entries WHERE account = ?`, key).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read cache sequence: %w", err)
	}

	added := 0
	for _, e := range fresh {
		extracted, err := json.Marshal(e.Extracted)
		if err != nil {
			return 0, fmt.Errorf("encode fact %s: %w", e.UID, err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO cache_entries (account, uid, seq, subject, sender, recipient, sent_date, html, extracted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(account, uid) DO NOTHING`,
			key, e.UID, seq+1, e.Subject, e.From, e.To, e.Date, e.HTML, string(extracted))
		if err != nil {
			return 0, fmt.Errorf("insert cache entry %s: %w", e.UID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert cache entry %s: %w", e.UID, err)
		}
		if n > 0 {
			seq++
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cache append: %w", err)
	}
	s.logger.Info("saved cache entries", zap.String("account", account), zap.Int("added", added))
	return added, nil
}

func (s *SQLiteStore) Accounts() []string {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT DISTINCT account FROM cache_entries ORDER BY account`)
	if err != nil {
		s.logger.Warn("could not list cached accounts", zap.Error(err))
		return nil
	}
	defer func() { _ = rows.Close() }()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			s.logger.Warn("could not list cached accounts", zap.Error(err))
			return nil
		}
		keys = append(keys, k)
	}
	return keys
}

func (s *SQLiteStore) Clear() error {
	if _, err := s.db.ExecContext(context.Background(), `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	s.logger.Info("cleared cache")
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
