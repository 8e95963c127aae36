package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bassamadnan/ordermail/report"
	"github.com/bassamadnan/ordermail/tui"
)

var reviewNoWatch bool

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Browse the orders and cancellations tables",
	Long: `Opens an interactive view of both tables with an overview pane.

  r  refresh from the cache     c  copy tracking numbers
  x  hide row for the session   u  show hidden rows
  s  sort by next column        S  reverse sort
  C  clear the cache            Tab  switch tables
  Enter  row details            Esc  back
  q  quit

The tables reload on their own when another process rewrites them.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationTUI: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		runner, store, err := openRunner(manager.Get())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		app := tui.NewReviewApp(commandContext(cmd), runner.Report(), runner, logger)
		return app.Run(!reviewNoWatch)
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print an overview of both tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ov, err := report.New(manager.Get().ReportPaths(), logger).Overview()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tui.RenderOverview(ov))
		return nil
	},
}

func init() {
	reviewCmd.Flags().BoolVar(&reviewNoWatch, "no-watch", false, "Do not reload when the report files change")
}
