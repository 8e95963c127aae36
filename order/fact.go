package order

import "encoding/json"

// MaxReasonLength caps CancellationReason, counted in runes.
const MaxReasonLength = 200

// Fact is the structured data extracted from a single message.
// An empty OrderID means the message carried no recognizable order number.
type Fact struct {
	OrderID            string
	TrackingNumbers    []string
	ShipTo             string
	IsCancellation     bool
	CancellationReason string
	Retailer           string
}

// HasOrder reports whether the fact can take part in reconciliation.
func (f Fact) HasOrder() bool { return f.OrderID != "" }

// factJSON is the cache layout. Optional strings are written as null.
type factJSON struct {
	OrderNumber        *string  `json:"order_number"`
	TrackingNumbers    []string `json:"tracking_numbers"`
	ShipTo             *string  `json:"ship_to"`
	IsCancellation     bool     `json:"is_cancellation"`
	CancellationReason *string  `json:"cancellation_reason"`
	Retailer           string   `json:"retailer"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (f Fact) MarshalJSON() ([]byte, error) {
	tracking := f.TrackingNumbers
	if tracking == nil {
		tracking = []string{}
	}
	return json.Marshal(factJSON{
		OrderNumber:        nullable(f.OrderID),
		TrackingNumbers:    tracking,
		ShipTo:             nullable(f.ShipTo),
		IsCancellation:     f.IsCancellation,
		CancellationReason: nullable(f.CancellationReason),
		Retailer:           f.Retailer,
	})
}

func (f *Fact) UnmarshalJSON(data []byte) error {
	var raw factJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Fact{
		OrderID:            deref(raw.OrderNumber),
		TrackingNumbers:    raw.TrackingNumbers,
		ShipTo:             deref(raw.ShipTo),
		IsCancellation:     raw.IsCancellation,
		CancellationReason: deref(raw.CancellationReason),
		Retailer:           raw.Retailer,
	}
	return nil
}
