package retailer

import "regexp"

// GlobalTrackingPatterns covers carrier-prefixed codes and bare digit runs.
var GlobalTrackingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(1Z[0-9A-Z]{16})\b`),
	regexp.MustCompile(`\b([A-Z]{2}\d{9}US)\b`),
	regexp.MustCompile(`\b(\d{12,22})\b`),
}

// GenericOrderPattern is the last resort for the default retailer.
var GenericOrderPattern = regexp.MustCompile(`\b(\d{8,15})\b`)

var (
	defaultShipped = []string{
		"has shipped",
		"have shipped",
		"shipped",
		"on its way",
		"on the way",
		"in transit",
		"tracking number",
	}
	defaultDelivered = []string{
		"delivered",
		"out for delivery",
		"delivery completed",
		"left at the",
		"was delivered",
		"arrived at",
		"delivered on",
		"signature required",
	}
	defaultCancel = []string{
		"your order has been canceled",
		"your order has been cancelled",
		"order was canceled",
		"order was cancelled",
		"we had to cancel",
		"has been canceled",
		"has been cancelled",
	}
	defaultTriggers = []ReasonTrigger{
		{Phrase: "purchase limit exceeded", Reason: "Purchase limit exceeded"},
		{Phrase: "payment issue", Reason: "Payment issue"},
		{Phrase: "out of stock", Reason: "Out of stock"},
	}
)

// defaultSubjectCancel is only matched against subjects; shipping notices
// use these words in body boilerplate.
var defaultSubjectCancel = []string{"canceled", "cancelled"}

func mustCompileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// Target is the reference rule set; its order numbers are 8-15 digits.
func Target() Rule {
	return Rule{
		Key:         "target",
		Identifiers: []string{"target.com", "target"},
		OrderPatterns: mustCompileAll(
			`(?i)order\s*#?\s*(\d{8,15})`,
			`(?i)order\s*number[:\s]*(\d{8,15})`,
			`#(\d{8,15})`,
		),
		SubjectCancelKeywords: []string{
			"sorry, we had to cancel",
			"cancel order",
			"canceled",
			"cancelled",
		},
		CancelKeywords: []string{
			"your order has been canceled",
			"your order has been cancelled",
			"order was canceled",
			"order was cancelled",
			"we had to cancel",
			"purchase limit exceeded",
			"payment issue",
			"activity not supported",
			"you haven't been charged",
			"system automatically canceled",
		},
		ShippedKeywords:   defaultShipped,
		DeliveredKeywords: defaultDelivered,
		ReasonTriggers: []ReasonTrigger{
			{Phrase: "purchase limit exceeded", Reason: "Purchase limit exceeded"},
			{Phrase: "payment issue", Reason: "Payment issue"},
			{Phrase: "activity not supported", Reason: "Activity not supported on Target.com"},
			{Phrase: "out of stock", Reason: "Out of stock"},
		},
	}
}

func Walmart() Rule {
	return Rule{
		Key:         "walmart",
		Identifiers: []string{"walmart"},
		OrderPatterns: mustCompileAll(
			`(?i)order\s*(?:number|#)[:\s#]*(\d{7}-\d{8})`,
			`(?i)order\s*(?:number|#)[:\s#]*(\d{13,15})`,
		),
		SubjectCancelKeywords: append([]string{"cancellation"}, defaultSubjectCancel...),
		CancelKeywords:        defaultCancel,
		ShippedKeywords:       defaultShipped,
		DeliveredKeywords:     defaultDelivered,
		ReasonTriggers:        defaultTriggers,
	}
}

func BestBuy() Rule {
	return Rule{
		Key:         "bestbuy",
		Identifiers: []string{"bestbuy", "best buy"},
		OrderPatterns: mustCompileAll(
			`(?i)\b(BBY\d{2}-\d{12})\b`,
		),
		SubjectCancelKeywords: defaultSubjectCancel,
		CancelKeywords:        defaultCancel,
		ShippedKeywords:       defaultShipped,
		DeliveredKeywords:     defaultDelivered,
		ReasonTriggers:        defaultTriggers,
	}
}

func Amazon() Rule {
	return Rule{
		Key:         "amazon",
		Identifiers: []string{"amazon"},
		OrderPatterns: mustCompileAll(
			`\b(\d{3}-\d{7}-\d{7})\b`,
		),
		SubjectCancelKeywords: defaultSubjectCancel,
		CancelKeywords:        append([]string{"item cancelled", "item canceled", "cancellation request"}, defaultCancel...),
		ShippedKeywords:       defaultShipped,
		DeliveredKeywords:     defaultDelivered,
		TrackingPatterns: mustCompileAll(
			`\b(TBA\d{12})\b`,
			`\b(1Z[0-9A-Z]{16})\b`,
			`\b(\d{12,22})\b`,
		),
		ReasonTriggers: defaultTriggers,
	}
}

// Builtin returns a registry preloaded with the bundled retailers. An empty
// defaultKey falls back to target.
func Builtin(defaultKey string) *Registry {
	if defaultKey == "" {
		defaultKey = "target"
	}
	reg := New(defaultKey)
	reg.Register(Target())
	reg.Register(Walmart())
	reg.Register(BestBuy())
	reg.Register(Amazon())
	return reg
}
