package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bassamadnan/ordermail/config"
	"github.com/bassamadnan/ordermail/pipeline"
	"github.com/bassamadnan/ordermail/reconcile"
	"github.com/bassamadnan/ordermail/tui"
)

var (
	scanDays     int
	scanAccounts []string
	scanProgress bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Fetch new mail for every account and update the tables",
	Long: `Fetches messages newer than days_back from each configured account, one
account at a time, caches them, and reconciles the cache into the orders and
cancellations tables. An account that fails is logged and skipped.

Interrupting a scan stops it after the account in progress.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the tables from the cache without fetching",
	Args:  cobra.NoArgs,
	RunE:  runRefresh,
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Delete the message cache of every account",
	Long:  "Deletes the cached messages of every account. The tables are kept; the next scan fetches everything inside the date window again.",
	Args:  cobra.NoArgs,
	RunE:  runClearCache,
}

func init() {
	scanCmd.Flags().IntVar(&scanDays, "days", 0, "Look back this many days (default: days_back from the config)")
	scanCmd.Flags().StringSliceVar(&scanAccounts, "account", nil, "Only scan these accounts (repeatable)")
	scanCmd.Flags().BoolVar(&scanProgress, "progress", false, "Show live progress")
}

// selectAccounts filters cfg's accounts by address. An empty filter selects
// every account.
func selectAccounts(cfg config.Config, filter []string) ([]config.Account, error) {
	if len(filter) == 0 {
		return cfg.Accounts, nil
	}
	var out []config.Account
	for _, email := range filter {
		a, ok := cfg.Account(email)
		if !ok {
			return nil, fmt.Errorf("%w: %s", config.ErrAccountNotFound, email)
		}
		out = append(out, a)
	}
	return out, nil
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg := manager.Get()
	if scanDays > 0 {
		cfg.DaysBack = scanDays
	}
	accounts, err := selectAccounts(cfg, scanAccounts)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return errors.New("no accounts configured, add one with: ordermail accounts add")
	}

	var (
		events chan pipeline.Event
		opts   []pipeline.Option
	)
	if scanProgress {
		events = make(chan pipeline.Event, 64)
		opts = append(opts, pipeline.WithEvents(events))
	}
	runner, store, err := openRunner(cfg, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := commandContext(cmd)
	var res pipeline.Result
	if scanProgress {
		emails := make([]string, len(accounts))
		for i, a := range accounts {
			emails[i] = a.Email
		}
		res, err = tui.RunProgress(ctx, emails, events, func(ctx context.Context) (pipeline.Result, error) {
			return runner.Run(ctx, accounts)
		})
	} else {
		res, err = runner.Run(ctx, accounts)
	}
	printRunSummary(cmd.OutOrStdout(), res)
	logger.Info("scan finished",
		zap.String("run_id", res.RunID),
		zap.Int("accounts", len(res.Accounts)),
		zap.Int("failed", len(res.Failed())),
		zap.Int("skipped", len(res.Skipped)))

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if failed := res.Failed(); len(failed) > 0 && len(failed) == len(res.Accounts) {
		return fmt.Errorf("all %d accounts failed, see %s", len(failed), cfg.LogFile)
	}
	return nil
}

func printRunSummary(w io.Writer, res pipeline.Result) {
	for _, a := range res.Accounts {
		if a.Err != nil {
			fmt.Fprintf(w, "%s: failed: %v\n", a.Account, a.Err)
			continue
		}
		fmt.Fprintf(w, "%s: %d fetched, %d cached, %s\n", a.Account, a.Fetched, a.Cached, describe(a.Summary))
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(w, "interrupted, not scanned: %s\n", strings.Join(res.Skipped, ", "))
	}
}

func describe(s reconcile.Summary) string {
	return fmt.Sprintf("%d new orders, %d updated, %d new cancellations", s.Created+s.CancelledOnly, s.Advanced, s.CancellationsWritten)
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	runner, store, err := openRunner(manager.Get())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	s, err := runner.Refresh(commandContext(cmd))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "refreshed: %s\n", describe(s))
	return nil
}

func runClearCache(cmd *cobra.Command, _ []string) error {
	runner, store, err := openRunner(manager.Get())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := runner.ClearCache(); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	logger.Info("cache cleared")
	fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
	return nil
}
