// Package retailer holds the per-retailer identification strings, order
// and tracking patterns, and status keyword sets that drive extraction.
// Supporting a new retailer is a matter of registering another Rule.
package retailer

import (
	"regexp"
	"strings"
	"sync"
)

// ReasonTrigger maps a high-confidence phrase in a cancellation notice to a
// fixed, human-readable reason.
type ReasonTrigger struct {
	Phrase string
	Reason string
}

// Rule describes one retailer. Keyword lists are matched as
// case-insensitive substrings; patterns are regular expressions whose first
// capture group yields the value.
type Rule struct {
	Key           string
	Identifiers   []string
	OrderPatterns []*regexp.Regexp
	// CancelKeywords are matched against the subject and the body.
	CancelKeywords []string
	// SubjectCancelKeywords only count when they appear in the subject.
	SubjectCancelKeywords []string
	ShippedKeywords       []string
	DeliveredKeywords     []string
	// TrackingPatterns replaces the global set when non-empty.
	TrackingPatterns []*regexp.Regexp
	ReasonTriggers   []ReasonTrigger
}

// Matches reports whether any identifier occurs in text.
func (r *Rule) Matches(text string) bool {
	return ContainsAny(text, r.Identifiers)
}

// Registry is an ordered set of rules with a fallback retailer.
type Registry struct {
	mu         sync.RWMutex
	rules      []*Rule
	byKey      map[string]*Rule
	defaultKey string
}

// New returns an empty registry whose fallback retailer is defaultKey.
func New(defaultKey string) *Registry {
	return &Registry{
		byKey:      make(map[string]*Rule),
		defaultKey: strings.ToLower(strings.TrimSpace(defaultKey)),
	}
}

// Register adds rule, or replaces an existing rule with the same key while
// keeping its position in registration order.
func (r *Registry) Register(rule Rule) {
	rule.Key = strings.ToLower(strings.TrimSpace(rule.Key))
	if rule.Key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := rule
	if _, ok := r.byKey[rule.Key]; ok {
		for i, existing := range r.rules {
			if existing.Key == rule.Key {
				r.rules[i] = &stored
			}
		}
	} else {
		r.rules = append(r.rules, &stored)
	}
	r.byKey[rule.Key] = &stored
}

// SetDefault changes the fallback retailer.
func (r *Registry) SetDefault(key string) {
	r.mu.Lock()
	r.defaultKey = strings.ToLower(strings.TrimSpace(key))
	r.mu.Unlock()
}

// DefaultKey returns the fallback retailer key.
func (r *Registry) DefaultKey() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultKey
}

// Lookup returns the rule registered under key.
func (r *Registry) Lookup(key string) (*Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.byKey[strings.ToLower(key)]
	return rule, ok
}

// Default returns the fallback rule. When the fallback key has no registered
// rule an empty rule carrying only the key is returned, so callers never
// need a nil check.
func (r *Registry) Default() *Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rule, ok := r.byKey[r.defaultKey]; ok {
		return rule
	}
	return &Rule{Key: r.defaultKey}
}

// Keys lists retailer keys in registration order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.rules))
	for _, rule := range r.rules {
		keys = append(keys, rule.Key)
	}
	return keys
}

// Identify returns the first rule, in registration order, whose identifiers
// match the sender or, failing that, the subject. It falls back to the
// default rule and never returns nil.
func (r *Registry) Identify(sender, subject string) *Rule {
	if rule := r.match(sender, subject); rule != nil {
		return rule
	}
	return r.Default()
}

// Recognizes reports whether some registered retailer matches the message.
func (r *Registry) Recognizes(sender, subject string) bool {
	return r.match(sender, subject) != nil
}

func (r *Registry) match(sender, subject string) *Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.rules {
		if rule.Matches(sender) || rule.Matches(subject) {
			return rule
		}
	}
	return nil
}

// Tracking returns the tracking patterns that apply to rule.
func (r *Registry) Tracking(rule *Rule) []*regexp.Regexp {
	if rule != nil && len(rule.TrackingPatterns) > 0 {
		return rule.TrackingPatterns
	}
	return GlobalTrackingPatterns
}

// ContainsAny reports whether text contains any of the keywords, ignoring
// case. Empty keywords never match.
func ContainsAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
