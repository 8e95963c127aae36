package retailer

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a rules file.
//
//	default: target
//	retailers:
//	  - key: costco
//	    identifiers: ["costco.com"]
//	    order_patterns: ['(?i)order\s*#\s*(\d{10})']
type File struct {
	Default   string     `yaml:"default"`
	Retailers []RuleSpec `yaml:"retailers"`
}

// RuleSpec is the uncompiled form of a Rule.
type RuleSpec struct {
	Key                   string            `yaml:"key"`
	Identifiers           []string          `yaml:"identifiers"`
	OrderPatterns         []string          `yaml:"order_patterns"`
	CancelKeywords        []string          `yaml:"cancel_keywords"`
	SubjectCancelKeywords []string          `yaml:"subject_cancel_keywords"`
	ShippedKeywords       []string          `yaml:"shipped_keywords"`
	DeliveredKeywords     []string          `yaml:"delivered_keywords"`
	TrackingPatterns      []string          `yaml:"tracking_patterns"`
	ReasonTriggers        map[string]string `yaml:"reason_triggers"`
	// TriggerOrder fixes trigger priority; map order is not stable.
	TriggerOrder []string `yaml:"trigger_order"`
}

// Compile validates every pattern in the rule.
func (s RuleSpec) Compile() (Rule, error) {
	rule := Rule{
		Key:                   s.Key,
		Identifiers:           s.Identifiers,
		CancelKeywords:        s.CancelKeywords,
		SubjectCancelKeywords: s.SubjectCancelKeywords,
		ShippedKeywords:       s.ShippedKeywords,
		DeliveredKeywords:     s.DeliveredKeywords,
	}
	if rule.ShippedKeywords == nil {
		rule.ShippedKeywords = defaultShipped
	}
	if rule.DeliveredKeywords == nil {
		rule.DeliveredKeywords = defaultDelivered
	}
	var err error
	if rule.OrderPatterns, err = compile(s.Key, s.OrderPatterns); err != nil {
		return Rule{}, err
	}
	if rule.TrackingPatterns, err = compile(s.Key, s.TrackingPatterns); err != nil {
		return Rule{}, err
	}
	seen := make(map[string]bool, len(s.ReasonTriggers))
	for _, phrase := range s.TriggerOrder {
		if reason, ok := s.ReasonTriggers[phrase]; ok && !seen[phrase] {
			rule.ReasonTriggers = append(rule.ReasonTriggers, ReasonTrigger{Phrase: phrase, Reason: reason})
			seen[phrase] = true
		}
	}
	for phrase, reason := range s.ReasonTriggers {
		if !seen[phrase] {
			rule.ReasonTriggers = append(rule.ReasonTriggers, ReasonTrigger{Phrase: phrase, Reason: reason})
		}
	}
	if len(rule.ReasonTriggers) == 0 {
		rule.ReasonTriggers = defaultTriggers
	}
	return rule, nil
}

func compile(key string, patterns []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("retailer %s: bad pattern %q: %w", key, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// LoadYAML registers every retailer described in r into reg. Entries whose
// key is already registered replace the existing rule.
func LoadYAML(r io.Reader, reg *Registry) error {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("decode retailer rules: %w", err)
	}
	compiled := make([]Rule, 0, len(file.Retailers))
	for _, rs := range file.Retailers {
		if rs.Key == "" {
			return fmt.Errorf("retailer rule without key")
		}
		rule, err := rs.Compile()
		if err != nil {
			return err
		}
		compiled = append(compiled, rule)
	}
	for _, rule := range compiled {
		reg.Register(rule)
	}
	if file.Default != "" {
		reg.SetDefault(file.Default)
	}
	return nil
}

// LoadFile is LoadYAML over a file path.
func LoadFile(path string, reg *Registry) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open retailer rules: %w", err)
	}
	defer f.Close()
	return LoadYAML(f, reg)
}
