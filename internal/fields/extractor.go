package fields

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/zombor/invoice-extract/internal/invoice"
)

// Match records which rule produced a field value
type Match struct {
	Field invoice.Field
	Rule  string
	Value string
}

// Extractor applies a compiled rule set to raw text. It holds no mutable
// state and is safe for concurrent use.
type Extractor struct {
	set    string
	rules  []compiledRule
	logger *slog.Logger
}

// New creates a new Extractor for the given rule set
func New(set RuleSet, logger *slog.Logger) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rules := make([]compiledRule, 0, len(set.Rules))
	for _, r := range set.Rules {
		c, err := r.compile()
		if err != nil {
			return nil, fmt.Errorf("rule set %q: %w", set.Name, err)
		}
		rules = append(rules, c)
	}
	return &Extractor{set: set.Name, rules: rules, logger: logger}, nil
}

// NewBuiltin creates a new Extractor from a built-in rule set
func NewBuiltin(name string, logger *slog.Logger) (*Extractor, error) {
	if name == "" {
		name = DefaultSet
	}
	set, ok := Builtin(name)
	if !ok {
		return nil, fmt.Errorf("unknown rule set %q (available: %s)", name, strings.Join(BuiltinNames(), ", "))
	}
	return New(set, logger)
}

// Extract resolves every field against text. Fields no rule locates are
// set to invoice.NotFound.
func (e *Extractor) Extract(text string) invoice.Fields {
	fields := invoice.NewFields()
	for _, m := range e.Matches(text) {
		fields[m.Field] = m.Value
	}
	return fields
}

// Matches returns the winning rule for each located field, in field order
func (e *Extractor) Matches(text string) []Match {
	var matches []Match
	for _, field := range invoice.AllFields {
		m, ok := e.resolve(field, text)
		if !ok {
			e.logger.Debug("field not found", "rule_set", e.set, "field", string(field))
			continue
		}
		e.logger.Debug("field matched", "rule_set", e.set, "field", string(field), "rule", m.Rule)
		matches = append(matches, m)
	}
	return matches
}

func (e *Extractor) resolve(field invoice.Field, text string) (Match, bool) {
	for _, r := range e.rules {
		if r.Field != field {
			continue
		}
		if v, ok := r.apply(text); ok {
			return Match{Field: field, Rule: r.Name, Value: v}, true
		}
	}
	return Match{}, false
}

// apply returns the first non-blank capture of the rule's group
func (r compiledRule) apply(text string) (string, bool) {
	for _, sub := range r.re.FindAllStringSubmatch(text, -1) {
		v := sub[r.Group]
		if strings.TrimSpace(v) == "" {
			continue
		}
		if r.Trim {
			v = strings.TrimSpace(v)
		}
		return v, true
	}
	return "", false
}
