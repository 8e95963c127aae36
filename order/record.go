package order

import (
	"sort"
	"strings"
)

// Record is one row of the orders table.
type Record struct {
	OrderID         string
	TrackingNumbers string
	ShipTo          string
	SentTo          string
	SentDate        string
	Status          Status
	Retailer        string
}

// Cancellation is one row of the cancellations table.
type Cancellation struct {
	OrderID  string
	SentTo   string
	SentDate string
	Reason   string
	Retailer string
}

// Column layouts of the persisted tables.
var (
	OrderColumns        = []string{"order_number", "tracking_numbers", "ship_to", "sent_to", "sent_date", "status", "retailer"}
	CancellationColumns = []string{"order_number", "sent_to", "sent_date", "reason", "retailer"}
)

// Values returns the record in OrderColumns order.
func (r Record) Values() []string {
	return []string{r.OrderID, r.TrackingNumbers, r.ShipTo, r.SentTo, r.SentDate, string(r.Status), r.Retailer}
}

// Values returns the cancellation in CancellationColumns order.
func (c Cancellation) Values() []string {
	return []string{c.OrderID, c.SentTo, c.SentDate, c.Reason, c.Retailer}
}

// JoinTracking renders a tracking set as the sorted, comma-joined column value.
func JoinTracking(numbers []string) string {
	seen := make(map[string]struct{}, len(numbers))
	out := make([]string, 0, len(numbers))
	for _, n := range numbers {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

// SplitTracking is the inverse of JoinTracking.
func SplitTracking(column string) []string {
	var out []string
	for _, part := range strings.Split(column, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
