package tui

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer subject line", 10, "a longe..."},
		{"abc", 2, "ab"},
		{"abc", 0, ""},
		{"Café crème brûlée", 8, "Café ..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncate(tt.in, tt.max), "truncate(%q, %d)", tt.in, tt.max)
	}
}

func TestFormatSentDate(t *testing.T) {
	now := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, "09:30", formatSentDate("2025-03-10T09:30:00Z", now))
	assert.Equal(t, "Mar 02", formatSentDate("2025-03-02T09:30:00Z", now))
	assert.Equal(t, "2024-12-31", formatSentDate("2024-12-31T09:30:00Z", now))
	assert.Equal(t, "last tuesday", formatSentDate("last tuesday", now))
	assert.Equal(t, "???", formatSentDate("", now))
}

func TestColumnTitle(t *testing.T) {
	assert.Equal(t, "Tracking Numbers", columnTitle("tracking_numbers"))
	assert.Equal(t, "Status", columnTitle("status"))
}

func TestTrackingForClipboard(t *testing.T) {
	assert.Equal(t, "1Z999AA10123456784\n9400111899223100012345", trackingForClipboard("1Z999AA10123456784, 9400111899223100012345"))
	assert.Equal(t, "", trackingForClipboard(""))
}

func keys(rows [][]string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r[0]
	}
	return out
}

func TestGridSortAndHide(t *testing.T) {
	g := newGrid([]string{"order_number", "sent_date", "status"})
	g.set([][]string{
		{"300", "2025-03-02T10:00:00Z", "DELIVERED"},
		{"100", "2025-03-09T10:00:00Z", "ORDERED"},
		{"200", "2025-01-15T10:00:00Z", "SHIPPED"},
	})
	assert.Equal(t, "file order", g.sortLabel())
	assert.Equal(t, []string{"300", "100", "200"}, keys(g.visible()))

	g.cycleSort()
	assert.Equal(t, "order_number asc", g.sortLabel())
	assert.Equal(t, []string{"100", "200", "300"}, keys(g.visible()))

	g.cycleSort()
	assert.Equal(t, []string{"200", "300", "100"}, keys(g.visible()), "dates sort chronologically")

	g.cycleSort()
	g.toggleDirection()
	assert.Equal(t, "status desc", g.sortLabel())
	if diff := cmp.Diff([]string{"300", "200", "100"}, keys(g.visible())); diff != "" {
		t.Errorf("status sort mismatch (-want +got):\n%s", diff)
	}

	g.cycleSort()
	assert.Equal(t, "file order", g.sortLabel())

	g.hide("100")
	g.hide("")
	assert.Equal(t, []string{"300", "200"}, keys(g.visible()))
	assert.Equal(t, 1, g.hiddenCount())
	g.unhideAll()
	assert.Len(t, g.visible(), 3)
}
