// Package pipeline runs fetch, extract, cache and reconcile for each
// configured account in turn.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bassamadnan/ordermail/cache"
	"github.com/bassamadnan/ordermail/config"
	"github.com/bassamadnan/ordermail/extract"
	"github.com/bassamadnan/ordermail/gmail"
	"github.com/bassamadnan/ordermail/htmltext"
	"github.com/bassamadnan/ordermail/imapmail"
	"github.com/bassamadnan/ordermail/mailbox"
	"github.com/bassamadnan/ordermail/order"
	"github.com/bassamadnan/ordermail/reconcile"
	"github.com/bassamadnan/ordermail/report"
	"github.com/bassamadnan/ordermail/retailer"
)

// SourceFactory opens the mail source for one account.
type SourceFactory func(ctx context.Context, account config.Account, cfg config.Config) (mailbox.Source, error)

// DefaultSources opens an IMAP or Gmail source according to account.Source.
func DefaultSources(logger *zap.Logger) SourceFactory {
	return func(ctx context.Context, account config.Account, cfg config.Config) (mailbox.Source, error) {
		switch account.SourceName() {
		case config.SourceIMAP:
			return imapmail.New(imapmail.Options{
				Server:   account.IMAPServer,
				Username: account.Email,
				Password: account.Secret(),
				Timeout:  cfg.FetchTimeout,
			}, logger), nil
		case config.SourceGmail:
			return gmail.NewClient(ctx, gmail.Options{
				CredentialsFile: account.CredentialsFile,
				TokenFile:       account.TokenFile,
				Timeout:         cfg.FetchTimeout,
			}, logger)
		}
		return nil, fmt.Errorf("unknown source %q for %s", account.Source, account.Email)
	}
}

type Runner struct {
	cfg        config.Config
	cache      cache.Store
	report     *report.Store
	registry   *retailer.Registry
	extractor  *extract.Extractor
	reconciler *reconcile.Reconciler
	sources    SourceFactory
	events     chan<- Event
	now        func() time.Time
	logger     *zap.Logger
}

type Option func(*Runner)

// WithEvents sends progress events to ch. Events are dropped when ch is
// full; the runner never closes ch.
func WithEvents(ch chan<- Event) Option {
	return func(r *Runner) { r.events = ch }
}

func WithSources(f SourceFactory) Option {
	return func(r *Runner) { r.sources = f }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New wires a runner from cfg. The retailer registry is the builtin one,
// extended by cfg.RetailersFile when set.
func New(cfg config.Config, store cache.Store, logger *zap.Logger, opts ...Option) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := retailer.Builtin(cfg.DefaultRetailer)
	if cfg.RetailersFile != "" {
		if err := retailer.LoadFile(cfg.RetailersFile, registry); err != nil {
			return nil, err
		}
	}
	reports := report.New(cfg.ReportPaths(), logger)
	r := &Runner{
		cfg:        cfg,
		cache:      store,
		report:     reports,
		registry:   registry,
		extractor:  extract.New(registry),
		reconciler: reconcile.New(registry, reports, logger),
		now:        time.Now,
		logger:     logger.Named("pipeline"),
	}
	r.sources = DefaultSources(logger)
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Runner) Report() *report.Store { return r.report }

// AccountResult is the outcome of one account.
type AccountResult struct {
	Account   string
	Fetched   int
	Ignored   int
	Cached    int
	Summary   reconcile.Summary
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type Result struct {
	RunID    string
	Accounts []AccountResult
	// Skipped lists accounts not started because the run was cancelled.
	Skipped []string
}

// Failed returns the accounts that ended with an error.
func (res Result) Failed() []AccountResult {
	var out []AccountResult
	for _, a := range res.Accounts {
		if a.Err != nil {
			out = append(out, a)
		}
	}
	return out
}

// Run processes accounts one after another. ctx is only checked between
// accounts: an account that has started runs to completion. A failing
// account is logged and the run moves on. The returned error is ctx's
// error when the run stopped early.
func (r *Runner) Run(ctx context.Context, accounts []config.Account) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	logger := r.logger.With(zap.String("run_id", res.RunID))
	logger.Info("run started", zap.Int("accounts", len(accounts)))

	for i, acct := range accounts {
		if err := ctx.Err(); err != nil {
			for _, rest := range accounts[i:] {
				res.Skipped = append(res.Skipped, rest.Email)
			}
			logger.Warn("run cancelled", zap.Int("skipped", len(res.Skipped)))
			r.emit(Event{RunID: res.RunID, Kind: RunFinished, Index: i, Total: len(accounts), Err: err})
			return res, err
		}
		r.emit(Event{RunID: res.RunID, Kind: AccountStarted, Account: acct.Email, Index: i, Total: len(accounts)})
		ar := r.runAccount(context.WithoutCancel(ctx), res.RunID, acct, i, len(accounts))
		res.Accounts = append(res.Accounts, ar)
		if ar.Err != nil {
			logger.Error("account failed", zap.String("account", acct.Email), zap.Error(ar.Err))
			r.emit(Event{RunID: res.RunID, Kind: AccountFailed, Account: acct.Email, Index: i, Total: len(accounts), Err: ar.Err})
			continue
		}
		r.emit(Event{RunID: res.RunID, Kind: AccountFinished, Account: acct.Email, Index: i, Total: len(accounts), Count: ar.Cached, Summary: ar.Summary})
	}
	logger.Info("run finished", zap.Int("failed", len(res.Failed())))
	r.emit(Event{RunID: res.RunID, Kind: RunFinished, Index: len(accounts), Total: len(accounts)})
	return res, nil
}

func (r *Runner) runAccount(ctx context.Context, runID string, acct config.Account, index, total int) AccountResult {
	ar := AccountResult{Account: acct.Email, StartedAt: r.now()}
	defer func() { ar.Duration = r.now().Sub(ar.StartedAt) }()
	logger := r.logger.With(zap.String("run_id", runID), zap.String("account", acct.Email))

	src, err := r.sources(ctx, acct, r.cfg)
	if err != nil {
		ar.Err = fmt.Errorf("open source: %w", err)
		return ar
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Debug("close source", zap.Error(err))
		}
	}()

	msgs, err := src.Fetch(ctx, mailbox.FetchOptions{
		Since: r.cfg.Cutoff(r.now()),
		Skip:  func(uid string) bool { return r.cache.Contains(acct.Email, uid) },
	})
	if err != nil {
		if len(msgs) == 0 {
			ar.Err = fmt.Errorf("fetch: %w", err)
			return ar
		}
		logger.Warn("fetch ended early, keeping partial results", zap.Int("messages", len(msgs)), zap.Error(err))
	}
	ar.Fetched = len(msgs)
	r.emit(Event{RunID: runID, Kind: Fetched, Account: acct.Email, Index: index, Total: total, Count: len(msgs)})

	entries := make([]cache.Entry, 0, len(msgs))
	for _, msg := range msgs {
		entry, ok := r.entry(logger, msg)
		if !ok {
			ar.Ignored++
			continue
		}
		entries = append(entries, entry)
	}
	added, err := r.cache.Append(acct.Email, entries)
	if err != nil {
		// Reconcile what is already cached; the new entries are refetched next run.
		logger.Error("could not save cache", zap.Error(err))
	}
	ar.Cached = added

	summary, err := r.reconciler.Run(ctx, r.cache.Load(acct.Email))
	if err != nil {
		ar.Err = fmt.Errorf("reconcile: %w", err)
		return ar
	}
	ar.Summary = summary
	logger.Info("account done",
		zap.Int("fetched", ar.Fetched),
		zap.Int("ignored", ar.Ignored),
		zap.Int("cached", ar.Cached),
		zap.Int("new_orders", summary.Created),
		zap.Int("updated_orders", summary.Advanced),
		zap.Int("new_cancellations", summary.CancellationsWritten))
	return ar
}

// entry turns a fetched message into a cache entry. ok is false for
// messages that are filtered out or unusable.
func (r *Runner) entry(logger *zap.Logger, msg mailbox.Message) (cache.Entry, bool) {
	logger = logger.With(zap.String("uid", msg.UID))
	if ignored, rule := r.cfg.Filters.Ignored(msg.From, msg.Subject); ignored {
		logger.Debug("message filtered", zap.String("rule", rule))
		return cache.Entry{}, false
	}
	if !r.cfg.AcceptUnrecognized && !r.registry.Recognizes(msg.From, msg.Subject) {
		logger.Debug("sender is not a known retailer", zap.String("from", msg.From))
		return cache.Entry{}, false
	}
	if msg.Date.IsZero() {
		logger.Warn("message has no usable date, skipping")
		return cache.Entry{}, false
	}
	if strings.TrimSpace(msg.Body) == "" {
		logger.Warn("message has no body, skipping")
		return cache.Entry{}, false
	}
	fact := r.extractor.Extract(extract.Message{
		Sender:  msg.From,
		Subject: msg.Subject,
		Text:    htmltext.Convert(msg.Body),
	})
	logger.Debug("extracted",
		zap.String("order_number", fact.OrderID),
		zap.Bool("cancellation", fact.IsCancellation),
		zap.Int("tracking", len(fact.TrackingNumbers)))
	return cache.Entry{
		UID:       msg.UID,
		Subject:   msg.Subject,
		From:      strings.ToLower(msg.From),
		To:        msg.To,
		Date:      cache.FormatDate(msg.Date),
		HTML:      msg.Body,
		Extracted: fact,
	}, true
}

// Refresh reconciles every cached account without fetching.
func (r *Runner) Refresh(ctx context.Context) (reconcile.Summary, error) {
	total := reconcile.Summary{ByStatus: map[order.Status]int{}}
	for _, account := range r.cache.Accounts() {
		s, err := r.reconciler.Run(ctx, r.cache.Load(account))
		if err != nil {
			return total, fmt.Errorf("refresh %s: %w", account, err)
		}
		total = merge(total, s)
	}
	r.logger.Info("refreshed",
		zap.Int("new_orders", total.Created),
		zap.Int("updated_orders", total.Advanced),
		zap.Int("new_cancellations", total.CancellationsWritten))
	return total, nil
}

// ClearCache deletes the cache of every account.
func (r *Runner) ClearCache() error {
	return r.cache.Clear()
}

func merge(a, b reconcile.Summary) reconcile.Summary {
	a.Groups += b.Groups
	a.Created += b.Created
	a.Advanced += b.Advanced
	a.CancelledOnly += b.CancelledOnly
	a.Unchanged += b.Unchanged
	a.CancellationsWritten += b.CancellationsWritten
	// The orders table is shared, so the latest pass has the current counts.
	a.ByStatus = b.ByStatus
	return a
}

func (r *Runner) emit(e Event) {
	if r.events == nil {
		return
	}
	e.Time = r.now()
	select {
	case r.events <- e:
	default:
		r.logger.Debug("progress event dropped", zap.Stringer("kind", e.Kind))
	}
}
