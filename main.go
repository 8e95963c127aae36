package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bassamadnan/ordermail/cache"
	"github.com/bassamadnan/ordermail/config"
	"github.com/bassamadnan/ordermail/logging"
	"github.com/bassamadnan/ordermail/pipeline"
)

// annotationTUI marks commands that draw on the terminal; they log to the
// log file only.
const annotationTUI = "tui"

var (
	configPath string
	verbose    bool

	manager *config.Manager
	logger  = zap.NewNop()

	// sources overrides how mail sources are opened. Nil uses the IMAP and
	// Gmail clients.
	sources pipeline.SourceFactory
)

var rootCmd = &cobra.Command{
	Use:   "ordermail",
	Short: "Track retail orders from order emails",
	Long: `ordermail reads order, shipping, delivery and cancellation emails from
one or more mailboxes and keeps two tables up to date: the orders table and
the cancellations table (CSV, under output_dir).

Fetched messages are cached per account, so a scan only downloads new mail
and the tables can be rebuilt from the cache at any time with refresh.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		manager, err = config.NewManager(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg := manager.Get()
		logger, err = logging.New(logging.Options{
			Verbose: verbose,
			File:    cfg.LogFile,
			Stderr:  !ownsTerminal(cmd),
		})
		if err != nil {
			return err
		}
		logger.Debug("config loaded", zap.String("path", manager.Path()), zap.Int("accounts", len(cfg.Accounts)))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func ownsTerminal(cmd *cobra.Command) bool {
	if cmd.Annotations[annotationTUI] == "true" {
		return true
	}
	if f := cmd.Flags().Lookup("progress"); f != nil && f.Value.String() == "true" {
		return true
	}
	return false
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(clearCacheCmd)
	rootCmd.AddCommand(accountsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// openRunner wires the cache and the pipeline for cfg. The caller closes
// the returned store.
func openRunner(cfg config.Config, opts ...pipeline.Option) (*pipeline.Runner, cache.Store, error) {
	store, err := cache.Open(cfg.CacheBackend, cfg.CacheDir(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}
	if sources != nil {
		opts = append(opts, pipeline.WithSources(sources))
	}
	runner, err := pipeline.New(cfg, store, logger, opts...)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return runner, store, nil
}
