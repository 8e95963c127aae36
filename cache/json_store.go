package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bassamadnan/ordermail/atomicfile"
)

const (
	filePrefix = "emails_"
	fileSuffix = ".json"
)

type accountLog struct {
	entries []Entry
	uids    map[string]struct{}
	// corrupt is set when the file existed but could not be decoded; the
	// next write moves it aside instead of overwriting it.
	corrupt bool

	// exists, modTime and size describe the file when it was last read or
	// written. A mismatch means another process rewrote it.
	exists  bool
	modTime time.Time
	size    int64
}

func (l *accountLog) stamp(info os.FileInfo, err error) {
	l.exists = err == nil
	if err != nil {
		l.modTime, l.size = time.Time{}, 0
		return
	}
	l.modTime, l.size = info.ModTime(), info.Size()
}

func (l *accountLog) current(info os.FileInfo, err error) bool {
	if err != nil {
		return !l.exists
	}
	return l.exists && info.ModTime().Equal(l.modTime) && info.Size() == l.size
}

// JSONStore keeps one JSON array per account under dir.
type JSONStore struct {
	dir    string
	logger *zap.Logger

	mu       sync.Mutex
	accounts map[string]*accountLog
}

func NewJSONStore(dir string, logger *zap.Logger) *JSONStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONStore{
		dir:      dir,
		logger:   logger,
		accounts: make(map[string]*accountLog),
	}
}

// Path returns the cache file for account.
func (s *JSONStore) Path(account string) string {
	return filepath.Join(s.dir, filePrefix+AccountKey(account)+fileSuffix)
}

func (s *JSONStore) Load(account string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.load(account)
	out := make([]Entry, len(log.entries))
	copy(out, log.entries)
	return out
}

func (s *JSONStore) Contains(account, uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.load(account).uids[uid]
	return ok
}

func (s *JSONStore) Append(account string, entries []Entry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.load(account)
	fresh := dedupe(log.uids, entries)
	if len(fresh) == 0 {
		return 0, nil
	}
	all := append(append([]Entry{}, log.entries...), fresh...)
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		s.forget(log, fresh)
		return 0, fmt.Errorf("encode cache for %s: %w", account, err)
	}
	path := s.Path(account)
	if log.corrupt {
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if err := os.Rename(path, aside); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("could not move corrupt cache aside", zap.String("path", path), zap.Error(err))
		} else {
			s.logger.Warn("moved corrupt cache aside", zap.String("path", path), zap.String("moved_to", aside))
		}
		log.corrupt = false
	}
	if err := atomicfile.Write(path, data, 0o644); err != nil {
		s.forget(log, fresh)
		return 0, fmt.Errorf("write cache %s: %w", path, err)
	}
	log.entries = all
	log.stamp(os.Stat(path))
	s.logger.Info("saved cache entries",
		zap.String("account", account),
		zap.Int("added", len(fresh)),
		zap.Int("total", len(all)))
	return len(fresh), nil
}

// forget undoes the UID bookkeeping dedupe did for a batch that was not
// persisted.
func (s *JSONStore) forget(log *accountLog, fresh []Entry) {
	for _, e := range fresh {
		delete(log.uids, e.UID)
	}
}

func (s *JSONStore) Accounts() []string {
	matches, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		name := filepath.Base(m)
		keys = append(keys, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	}
	sort.Strings(keys)
	return keys
}

// Clear deletes every account's cache file.
func (s *JSONStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[string]*accountLog)
	matches, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*"+fileSuffix+"*"))
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	s.logger.Info("cleared cache", zap.String("dir", s.dir), zap.Int("files", len(matches)))
	return errors.Join(errs...)
}

func (s *JSONStore) Close() error { return nil }

// load returns the memoized log for account, re-reading the file when it
// changed on disk since the last read or write.
func (s *JSONStore) load(account string) *accountLog {
	key := AccountKey(account)
	path := s.Path(account)
	info, statErr := os.Stat(path)
	if log, ok := s.accounts[key]; ok {
		if log.current(info, statErr) {
			return log
		}
		s.logger.Debug("cache file changed on disk, reloading", zap.String("path", path))
	}
	log := &accountLog{uids: make(map[string]struct{})}
	log.stamp(info, statErr)
	s.accounts[key] = log

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("cache file does not exist, starting fresh", zap.String("path", path))
		} else {
			s.logger.Warn("could not read cache", zap.String("path", path), zap.Error(err))
		}
		return log
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("could not decode cache, treating as empty", zap.String("path", path), zap.Error(err))
		log.corrupt = true
		return log
	}
	log.entries = dedupe(log.uids, entries)
	s.logger.Info("loaded cache", zap.String("path", path), zap.Int("entries", len(log.entries)))
	return log
}
