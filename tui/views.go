package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/bassamadnan/ordermail/order"
)

const (
	PageDashboard = "dashboard"
	PageDetail    = "detail"
	PageConfirm   = "confirm"
)

// TableView draws a grid into a tview table with a fixed header row.
type TableView struct {
	*tview.Table
	title string
	grid  *grid
	now   func() time.Time
}

func NewTableView(title string, columns []string, now func() time.Time) *TableView {
	t := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	t.SetBackgroundColor(tcell.ColorDefault)
	t.SetSelectedStyle(tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.ColorSteelBlue).
		Attributes(tcell.AttrBold))
	t.SetBorder(true).SetTitle(title)
	tv := &TableView{Table: t, title: title, grid: newGrid(columns), now: now}
	tv.render()
	return tv
}

// SetRows replaces the rows, keeping the selection on the same key when
// it is still visible.
func (tv *TableView) SetRows(rows [][]string) {
	key := tv.SelectedKey()
	tv.grid.set(rows)
	tv.render()
	tv.selectKey(key)
}

func (tv *TableView) visible() [][]string { return tv.grid.visible() }

// Selected returns the selected row, or nil.
func (tv *TableView) Selected() []string {
	row, _ := tv.GetSelection()
	rows := tv.visible()
	if row < 1 || row > len(rows) {
		return nil
	}
	return rows[row-1]
}

func (tv *TableView) SelectedKey() string {
	if r := tv.Selected(); r != nil {
		return r[0]
	}
	return ""
}

func (tv *TableView) selectKey(key string) {
	rows := tv.visible()
	for i, r := range rows {
		if key != "" && r[0] == key {
			tv.Select(i+1, 0)
			return
		}
	}
	if len(rows) > 0 {
		row, _ := tv.GetSelection()
		if row < 1 {
			row = 1
		}
		if row > len(rows) {
			row = len(rows)
		}
		tv.Select(row, 0)
	}
}

// HideSelected hides the selected row for the session.
func (tv *TableView) HideSelected() string {
	key := tv.SelectedKey()
	if key == "" {
		return ""
	}
	row, _ := tv.GetSelection()
	tv.grid.hide(key)
	tv.render()
	if n := len(tv.visible()); n > 0 {
		tv.Select(min(row, n), 0)
	}
	return key
}

func (tv *TableView) UnhideAll() {
	key := tv.SelectedKey()
	tv.grid.unhideAll()
	tv.render()
	tv.selectKey(key)
}

func (tv *TableView) CycleSort() string {
	key := tv.SelectedKey()
	tv.grid.cycleSort()
	tv.render()
	tv.selectKey(key)
	return tv.grid.sortLabel()
}

func (tv *TableView) ToggleSortDirection() string {
	key := tv.SelectedKey()
	tv.grid.toggleDirection()
	tv.render()
	tv.selectKey(key)
	return tv.grid.sortLabel()
}

func (tv *TableView) render() {
	tv.Clear()
	for c, name := range tv.grid.columns {
		tv.SetCell(0, c, tview.NewTableCell(columnTitle(name)).
			SetTextColor(tcell.ColorYellow).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}
	rows := tv.visible()
	for r, row := range rows {
		for c, name := range tv.grid.columns {
			text := cell(row, c)
			cellView := tview.NewTableCell(tview.Escape(displayValue(name, text, tv.now()))).
				SetMaxWidth(40).
				SetExpansion(1)
			if name == "status" {
				cellView.SetTextColor(statusCellColor(order.ParseStatus(text)))
			}
			tv.SetCell(r+1, c, cellView)
		}
	}
	title := fmt.Sprintf("%s (%d)", tv.title, len(rows))
	if hidden := tv.grid.hiddenCount(); hidden > 0 {
		title = fmt.Sprintf("%s (%d, %d hidden)", tv.title, len(rows), hidden)
	}
	tv.SetTitle(title)
}

func displayValue(column, value string, now time.Time) string {
	switch column {
	case "sent_date":
		return formatSentDate(value, now)
	case "ship_to", "reason":
		return truncate(value, 40)
	}
	return value
}

// DetailView shows every column of one row.
type DetailView struct {
	*tview.Frame
	text *tview.TextView
}

func NewDetailView() *DetailView {
	text := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true)
	text.SetBackgroundColor(tcell.ColorDefault)
	frame := tview.NewFrame(text).
		AddText("", true, tview.AlignCenter, tcell.ColorYellow).
		AddText("Esc: back  c: copy tracking", false, tview.AlignCenter, tcell.ColorDimGray)
	frame.SetBorder(true).SetBackgroundColor(tcell.ColorDefault)
	return &DetailView{Frame: frame, text: text}
}

func (dv *DetailView) SetRow(kind string, columns, row []string) {
	var b strings.Builder
	width := 0
	for _, c := range columns {
		width = max(width, len(columnTitle(c))+1)
	}
	for i, c := range columns {
		value := cell(row, i)
		if c == "tracking_numbers" {
			value = strings.Join(order.SplitTracking(value), "\n"+strings.Repeat(" ", width+2))
		}
		fmt.Fprintf(&b, "[::b]%-*s[::-]  %s\n", width, columnTitle(c)+":", tview.Escape(value))
	}
	dv.text.SetText(b.String()).ScrollToBeginning()
	dv.Frame.Clear().
		AddText(fmt.Sprintf("%s %s", kind, cell(row, 0)), true, tview.AlignCenter, tcell.ColorYellow).
		AddText("Esc: back  c: copy tracking", false, tview.AlignCenter, tcell.ColorDimGray)
}

func (dv *DetailView) Text() string { return dv.text.GetText(true) }
