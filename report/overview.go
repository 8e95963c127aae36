package report

import (
	"time"

	"github.com/bassamadnan/ordermail/order"
)

// Overview summarizes both tables. Total counts orders and cancellations
// together, and CancellationRate is a percentage of Total.
type Overview struct {
	Orders           int
	Cancellations    int
	Total            int
	CancellationRate float64
	ByStatus         map[order.Status]int
	ByRetailer       map[string]int
	RefreshedAt      time.Time
}

func (s *Store) Overview() (Overview, error) {
	orders, err := s.LoadOrders()
	if err != nil {
		return Overview{}, err
	}
	cancellations, err := s.LoadCancellations()
	if err != nil {
		return Overview{}, err
	}
	return Summarize(orders.Rows(), cancellations), nil
}

func Summarize(orders []order.Record, cancellations []order.Cancellation) Overview {
	ov := Overview{
		Orders:        len(orders),
		Cancellations: len(cancellations),
		ByStatus:      make(map[order.Status]int),
		ByRetailer:    make(map[string]int),
		RefreshedAt:   time.Now(),
	}
	for _, r := range orders {
		ov.ByStatus[r.Status]++
		ov.ByRetailer[r.Retailer]++
	}
	for _, c := range cancellations {
		ov.ByRetailer[c.Retailer]++
	}
	ov.Total = ov.Orders + ov.Cancellations
	if ov.Total > 0 {
		ov.CancellationRate = float64(ov.Cancellations) / float64(ov.Total) * 100
	}
	return ov
}
