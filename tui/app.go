// Package tui holds the terminal interfaces: a tview review app over the
// report tables and a bubbletea view of a running scan.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/bassamadnan/ordermail/order"
	"github.com/bassamadnan/ordermail/reconcile"
	"github.com/bassamadnan/ordermail/report"
)

// clipboardWriteAll is swapped out in tests.
var clipboardWriteAll = clipboard.WriteAll

// Backend performs the write operations the review app offers.
type Backend interface {
	Refresh(ctx context.Context) (reconcile.Summary, error)
	ClearCache() error
}

type ReviewApp struct {
	*tview.Application
	ctx     context.Context
	store   *report.Store
	backend Backend
	logger  *zap.Logger

	pages         *tview.Pages
	orders        *TableView
	cancellations *TableView
	overview      *tview.TextView
	detail        *DetailView
	statusBar     *tview.TextView
	focused       *TableView

	// async runs slow work off the event loop and queue hands results back
	// to it.
	async func(func())
	queue func(func())
	now   func() time.Time
	busy  bool
}

func NewReviewApp(ctx context.Context, store *report.Store, backend Backend, logger *zap.Logger) *ReviewApp {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &ReviewApp{
		Application: tview.NewApplication(),
		ctx:         ctx,
		store:       store,
		backend:     backend,
		logger:      logger.Named("review"),
		now:         time.Now,
	}
	a.async = func(f func()) { go f() }
	a.queue = func(f func()) { a.QueueUpdateDraw(f) }

	a.orders = NewTableView("Orders", order.OrderColumns, a.clock)
	a.cancellations = NewTableView("Cancellations", order.CancellationColumns, a.clock)
	a.detail = NewDetailView()
	a.focused = a.orders

	a.overview = tview.NewTextView().SetDynamicColors(true).SetWrap(true)
	a.overview.SetBackgroundColor(tcell.ColorDefault)
	a.overview.SetBorder(true).SetTitle("Overview")

	a.statusBar = tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignLeft)
	a.statusBar.SetBackgroundColor(tcell.ColorDefault)

	a.orders.SetSelectedFunc(func(row, _ int) { a.showDetail(a.orders) })
	a.cancellations.SetSelectedFunc(func(row, _ int) { a.showDetail(a.cancellations) })

	tables := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.orders, 0, 3, true).
		AddItem(a.cancellations, 0, 1, false)
	body := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(tables, 0, 4, true).
		AddItem(a.overview, 28, 0, false)
	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.pages = tview.NewPages().
		AddPage(PageDashboard, layout, true, true).
		AddPage(PageDetail, a.detail, true, false)

	a.SetRoot(a.pages, true).EnableMouse(true)
	a.SetInputCapture(a.handleKey)
	return a
}

func (a *ReviewApp) clock() time.Time { return a.now() }

// Run loads the tables and blocks until the user quits. When watch is set
// the tables reload whenever the report files change on disk.
func (a *ReviewApp) Run(watch bool) error {
	a.Reload()
	if watch {
		paths := a.store.Paths()
		w, err := WatchReports([]string{paths.Orders, paths.Cancellations}, func() {
			a.queue(func() {
				a.Reload()
				a.setStatus("[green]report changed on disk, reloaded[-]")
			})
		}, a.logger)
		if err != nil {
			a.logger.Warn("could not watch report files", zap.Error(err))
		} else {
			ctx, cancel := context.WithCancel(a.ctx)
			w.Start(ctx)
			defer func() {
				cancel()
				_ = w.Close()
			}()
		}
	}
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-a.ctx.Done():
			a.Stop()
		case <-stopped:
		}
	}()
	a.SetFocus(a.focused)
	return a.Application.Run()
}

// Reload re-reads both tables and the overview.
func (a *ReviewApp) Reload() {
	table, err := a.store.LoadOrders()
	if err != nil {
		a.logger.Error("load orders", zap.Error(err))
		a.setStatus(fmt.Sprintf("[red]could not load orders: %v[-]", err))
		return
	}
	cancellations, err := a.store.LoadCancellations()
	if err != nil {
		a.logger.Error("load cancellations", zap.Error(err))
		a.setStatus(fmt.Sprintf("[red]could not load cancellations: %v[-]", err))
		return
	}
	rows := table.Rows()
	a.orders.SetRows(orderRows(rows))
	a.cancellations.SetRows(cancellationRows(cancellations))
	ov := report.Summarize(rows, cancellations)
	ov.RefreshedAt = a.now()
	a.overview.SetText(overviewText(ov))
	a.setStandardStatus()
}

func (a *ReviewApp) handleKey(event *tcell.EventKey) *tcell.EventKey {
	page, _ := a.pages.GetFrontPage()
	if page == PageConfirm {
		return event
	}
	if event.Key() == tcell.KeyCtrlC {
		a.Stop()
		return nil
	}
	if page == PageDetail {
		switch {
		case event.Key() == tcell.KeyEscape:
			a.showDashboard()
			return nil
		case event.Rune() == 'c':
			a.copyTracking()
			return nil
		case event.Rune() == 'q':
			a.Stop()
			return nil
		}
		return event
	}

	switch event.Key() {
	case tcell.KeyTab, tcell.KeyBacktab:
		a.toggleFocus()
		return nil
	}
	switch event.Rune() {
	case 'q':
		a.Stop()
	case 'r':
		a.refresh()
	case 'C':
		a.confirmClearCache()
	case 'c':
		a.copyTracking()
	case 'x':
		if key := a.focused.HideSelected(); key != "" {
			a.setStatus(fmt.Sprintf("hid %s for this session (u: show all)", key))
		}
	case 'u':
		a.focused.UnhideAll()
		a.setStandardStatus()
	case 's':
		a.setStatus("sorted by " + a.focused.CycleSort())
	case 'S':
		a.setStatus("sorted by " + a.focused.ToggleSortDirection())
	default:
		return event
	}
	return nil
}

func (a *ReviewApp) toggleFocus() {
	if a.focused == a.orders {
		a.focused = a.cancellations
	} else {
		a.focused = a.orders
	}
	a.SetFocus(a.focused)
}

func (a *ReviewApp) showDetail(tv *TableView) {
	row := tv.Selected()
	if row == nil {
		return
	}
	kind := "Order"
	if tv == a.cancellations {
		kind = "Cancelled order"
	}
	a.focused = tv
	a.detail.SetRow(kind, tv.grid.columns, row)
	a.pages.SwitchToPage(PageDetail)
	a.SetFocus(a.detail)
}

func (a *ReviewApp) showDashboard() {
	a.pages.SwitchToPage(PageDashboard)
	a.SetFocus(a.focused)
}

func (a *ReviewApp) copyTracking() {
	if a.focused != a.orders {
		a.setStatus("[yellow]tracking numbers are on the orders table[-]")
		return
	}
	row := a.orders.Selected()
	if row == nil {
		return
	}
	tracking := trackingForClipboard(cell(row, 1))
	if tracking == "" {
		a.setStatus(fmt.Sprintf("[yellow]order %s has no tracking numbers[-]", row[0]))
		return
	}
	if err := clipboardWriteAll(tracking); err != nil {
		a.logger.Warn("clipboard write failed", zap.Error(err))
		a.setStatus(fmt.Sprintf("[red]could not copy: %v[-]", err))
		return
	}
	a.setStatus(fmt.Sprintf("[green]copied tracking for %s[-]", row[0]))
}

func (a *ReviewApp) refresh() {
	if a.busy {
		return
	}
	a.busy = true
	a.setStatus("refreshing...")
	a.async(func() {
		summary, err := a.backend.Refresh(a.ctx)
		a.queue(func() {
			a.busy = false
			if err != nil {
				a.logger.Error("refresh failed", zap.Error(err))
				a.setStatus(fmt.Sprintf("[red]refresh failed: %v[-]", err))
				return
			}
			a.Reload()
			a.setStatus(fmt.Sprintf("[green]refreshed: %d new, %d updated, %d cancellations[-]",
				summary.Created, summary.Advanced, summary.CancellationsWritten))
		})
	})
}

func (a *ReviewApp) confirmClearCache() {
	modal := tview.NewModal().
		SetText("Delete the message cache for every account?\nThe report tables are kept.").
		AddButtons([]string{"Clear", "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			a.pages.RemovePage(PageConfirm)
			a.SetFocus(a.focused)
			if label == "Clear" {
				a.clearCache()
			}
		})
	a.pages.AddPage(PageConfirm, modal, true, true)
	a.SetFocus(modal)
}

func (a *ReviewApp) clearCache() {
	if err := a.backend.ClearCache(); err != nil {
		a.logger.Error("clear cache failed", zap.Error(err))
		a.setStatus(fmt.Sprintf("[red]clear cache failed: %v[-]", err))
		return
	}
	a.setStatus("[green]cache cleared[-]")
}

func (a *ReviewApp) setStatus(text string) {
	a.statusBar.SetText(" " + text)
}

func (a *ReviewApp) setStandardStatus() {
	a.setStatus(fmt.Sprintf("[::d]%s | r:refresh c:copy x:hide u:unhide s/S:sort Tab:switch C:clear cache Enter:detail q:quit[::-]",
		a.now().Format("15:04:05")))
}
