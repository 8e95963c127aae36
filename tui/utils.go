package tui

import (
	"sort"
	"strings"
	"time"

	"github.com/bassamadnan/ordermail/cache"
	"github.com/bassamadnan/ordermail/order"
)

// truncate shortens s to maxLen runes, ending in "..." when cut.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// formatSentDate renders a stored sent_date for a table cell: the time for
// today, the day otherwise. Unparseable values are shown as stored.
func formatSentDate(value string, now time.Time) string {
	e := cache.Entry{Date: value}
	t, ok := e.Time()
	if !ok {
		if value == "" {
			return "???"
		}
		return value
	}
	t = t.In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 02")
	}
	return t.Format("2006-01-02")
}

// grid is the state behind one review table: the loaded rows, rows hidden
// for the session, and the active sort. Column 0 is the row key.
type grid struct {
	columns []string
	rows    [][]string
	hidden  map[string]struct{}
	sortCol int // -1 keeps file order
	desc    bool
}

func newGrid(columns []string) *grid {
	return &grid{columns: columns, hidden: make(map[string]struct{}), sortCol: -1}
}

func (g *grid) set(rows [][]string) { g.rows = rows }

func (g *grid) hide(key string) {
	if key != "" {
		g.hidden[key] = struct{}{}
	}
}

func (g *grid) unhideAll() { g.hidden = make(map[string]struct{}) }

func (g *grid) hiddenCount() int {
	n := 0
	for _, r := range g.rows {
		if _, ok := g.hidden[r[0]]; ok {
			n++
		}
	}
	return n
}

// cycleSort moves to the next column, wrapping back to file order after
// the last one.
func (g *grid) cycleSort() {
	g.sortCol++
	if g.sortCol >= len(g.columns) {
		g.sortCol = -1
	}
}

func (g *grid) toggleDirection() { g.desc = !g.desc }

func (g *grid) sortLabel() string {
	if g.sortCol < 0 {
		return "file order"
	}
	dir := "asc"
	if g.desc {
		dir = "desc"
	}
	return g.columns[g.sortCol] + " " + dir
}

// visible returns the rows to draw, hidden rows removed and sorted.
func (g *grid) visible() [][]string {
	out := make([][]string, 0, len(g.rows))
	for _, r := range g.rows {
		if _, ok := g.hidden[r[0]]; !ok {
			out = append(out, r)
		}
	}
	if g.sortCol < 0 {
		return out
	}
	col := g.sortCol
	less := func(a, b string) bool { return a < b }
	switch g.columns[col] {
	case "status":
		less = func(a, b string) bool { return order.ParseStatus(a).Rank() < order.ParseStatus(b).Rank() }
	case "sent_date":
		less = func(a, b string) bool {
			ta, _ := cache.Entry{Date: a}.Time()
			tb, _ := cache.Entry{Date: b}.Time()
			return ta.Before(tb)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := cell(out[i], col), cell(out[j], col)
		if g.desc {
			return less(b, a)
		}
		return less(a, b)
	})
	return out
}

func cell(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}

func orderRows(records []order.Record) [][]string {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = r.Values()
	}
	return rows
}

func cancellationRows(records []order.Cancellation) [][]string {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = r.Values()
	}
	return rows
}

// trackingForClipboard turns the tracking column into one number per line.
func trackingForClipboard(column string) string {
	return strings.Join(order.SplitTracking(column), "\n")
}

// columnTitle turns "tracking_numbers" into "Tracking Numbers".
func columnTitle(column string) string {
	words := strings.Split(column, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
