// Package extract turns a message's plain text and subject into an
// order.Fact using the rules of the retailer that sent it.
package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bassamadnan/ordermail/order"
	"github.com/bassamadnan/ordermail/retailer"
)

// UnspecifiedReason is recorded when a cancellation gives no reason.
const UnspecifiedReason = "Reason not specified"

var shipToPattern = regexp.MustCompile(`(?i)(?:deliver(?:s|ed)?|ships?)\s+to:\s*(.+,\s*\d{5})`)

// reasonPatterns are tried in order once no trigger phrase matched.
var reasonPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)what went wrong\?\s*(.+?)(?:\*\*|$)`),
	regexp.MustCompile(`(?i)reason[:\s]*([^.\n]+)`),
	regexp.MustCompile(`(?i)because[:\s]*([^.\n]+)`),
	regexp.MustCompile(`(?i)unfortunately[:\s]*([^.\n]+)`),
}

// Message is the extractor's view of a fetched message.
type Message struct {
	Sender  string
	Subject string
	// Text is the body already reduced from markup.
	Text string
}

// Extractor applies a retailer registry to messages. It is safe for
// concurrent use as long as the registry is not mutated.
type Extractor struct {
	registry *retailer.Registry
}

func New(registry *retailer.Registry) *Extractor {
	return &Extractor{registry: registry}
}

// Extract never fails: a sub-step that finds nothing leaves its field empty.
func (e *Extractor) Extract(msg Message) order.Fact {
	rule := e.registry.Identify(msg.Sender, msg.Subject)
	fact := order.Fact{Retailer: rule.Key}

	fact.OrderID = findFirst(rule.OrderPatterns, msg.Text, msg.Subject)
	if fact.OrderID == "" && rule.Key == e.registry.DefaultKey() {
		fact.OrderID = findFirst([]*regexp.Regexp{retailer.GenericOrderPattern}, msg.Text, msg.Subject)
	}

	fact.IsCancellation = retailer.ContainsAny(msg.Subject, rule.SubjectCancelKeywords) ||
		retailer.ContainsAny(msg.Subject, rule.CancelKeywords) ||
		retailer.ContainsAny(msg.Text, rule.CancelKeywords)

	if !fact.IsCancellation {
		fact.TrackingNumbers = trackingNumbers(e.registry.Tracking(rule), msg.Text, fact.OrderID)
	}

	if m := shipToPattern.FindStringSubmatch(msg.Text); m != nil {
		fact.ShipTo = strings.TrimSpace(m[1])
	}

	if fact.IsCancellation {
		fact.CancellationReason = cancellationReason(rule, msg.Text)
	}
	return fact
}

// findFirst tries each pattern against the body, then the subject, and
// returns the first capture group of the first match.
func findFirst(patterns []*regexp.Regexp, body, subject string) string {
	for _, re := range patterns {
		for _, text := range []string{body, subject} {
			if text == "" {
				continue
			}
			m := re.FindStringSubmatch(text)
			if len(m) > 1 && m[1] != "" {
				return m[1]
			}
		}
	}
	return ""
}

func trackingNumbers(patterns []*regexp.Regexp, body, orderID string) []string {
	if body == "" {
		return nil
	}
	seen := make(map[string]struct{})
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			for _, group := range m[1:] {
				if group == "" || group == orderID {
					continue
				}
				seen[group] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func cancellationReason(rule *retailer.Rule, body string) string {
	lower := strings.ToLower(body)
	for _, trig := range rule.ReasonTriggers {
		if trig.Phrase != "" && strings.Contains(lower, strings.ToLower(trig.Phrase)) {
			return trig.Reason
		}
	}
	for _, re := range reasonPatterns {
		if m := re.FindStringSubmatch(body); m != nil {
			if reason := capRunes(strings.TrimSpace(m[1]), order.MaxReasonLength); reason != "" {
				return reason
			}
		}
	}
	return UnspecifiedReason
}

func capRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
