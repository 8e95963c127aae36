package order

import "strings"

// Status is the lifecycle state of an order as persisted in the orders table.
type Status string

const (
	StatusOrdered   Status = "ORDERED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// Rank orders statuses so a merge can tell whether an observation advances
// a persisted status. Unknown statuses rank 0.
func (s Status) Rank() int {
	switch s {
	case StatusOrdered:
		return 1
	case StatusShipped:
		return 2
	case StatusDelivered:
		return 3
	case StatusCancelled:
		return 4
	}
	return 0
}

// Terminal reports whether no further writes are allowed once s is stored.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ParseStatus accepts the persisted column value in any case. Older tables
// wrote lowercase values. Empty or unknown input parses as ORDERED.
func ParseStatus(raw string) Status {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusShipped:
		return StatusShipped
	case StatusDelivered:
		return StatusDelivered
	case StatusCancelled, "CANCELED":
		return StatusCancelled
	}
	return StatusOrdered
}

// Statuses lists every status in rank order.
func Statuses() []Status {
	return []Status{StatusOrdered, StatusShipped, StatusDelivered, StatusCancelled}
}
