package tui

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 300 * time.Millisecond

// ReportWatcher calls onChange after the watched report files change.
// Bursts of events, such as a rewrite through a temp file and rename, are
// collapsed into one call.
type ReportWatcher struct {
	watcher  *fsnotify.Watcher
	names    map[string]struct{}
	debounce time.Duration
	onChange func()
	logger   *zap.Logger
	started  bool
	done     chan struct{}
}

// WatchReports watches the directories holding paths. The directories are
// created if missing so the watch survives the first write.
func WatchReports(paths []string, onChange func(), logger *zap.Logger) (*ReportWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	rw := &ReportWatcher{
		watcher:  w,
		names:    make(map[string]struct{}),
		debounce: defaultDebounce,
		onChange: onChange,
		logger:   logger.Named("watch"),
		done:     make(chan struct{}),
	}
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		rw.names[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = w.Close()
			return nil, err
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	return rw, nil
}

// Start processes events in the background until ctx is done or Close is
// called. It must be called at most once.
func (rw *ReportWatcher) Start(ctx context.Context) {
	rw.started = true
	go rw.run(ctx)
}

func (rw *ReportWatcher) run(ctx context.Context) {
	defer close(rw.done)
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if !rw.relevant(event) {
				continue
			}
			rw.logger.Debug("report changed", zap.String("path", event.Name), zap.Stringer("op", event.Op))
			if timer == nil {
				timer = time.NewTimer(rw.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(rw.debounce)
			}
			pending = timer.C
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.logger.Warn("watch error", zap.Error(err))
		case <-pending:
			pending = nil
			rw.onChange()
		}
	}
}

func (rw *ReportWatcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		abs = event.Name
	}
	_, ok := rw.names[abs]
	return ok
}

// Close stops the watcher and waits for the event loop to exit.
func (rw *ReportWatcher) Close() error {
	err := rw.watcher.Close()
	if rw.started {
		<-rw.done
	}
	return err
}
