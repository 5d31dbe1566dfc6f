package fields

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk layout of a rules file:
//
//	rule_sets:
//	  - name: acme
//	    rules:
//	      - name: ref
//	        field: Invoice Number
//	        pattern: 'Ref\s*#?\s*(\d+)'
//	        group: 1
type ruleFile struct {
	RuleSets []RuleSet `yaml:"rule_sets"`
}

// LoadRuleSets decodes rule sets from YAML and validates every pattern
func LoadRuleSets(r io.Reader) (map[string]RuleSet, error) {
	var rf ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		return nil, fmt.Errorf("decoding rules: %w", err)
	}

	sets := make(map[string]RuleSet, len(rf.RuleSets))
	for i, set := range rf.RuleSets {
		if set.Name == "" {
			return nil, fmt.Errorf("rule set %d: name is required", i)
		}
		if _, dup := sets[set.Name]; dup {
			return nil, fmt.Errorf("rule set %q defined twice", set.Name)
		}
		for j := range set.Rules {
			if set.Rules[j].Name == "" {
				set.Rules[j].Name = fmt.Sprintf("%s-%d", set.Name, j)
			}
			if _, err := set.Rules[j].compile(); err != nil {
				return nil, fmt.Errorf("rule set %q: %w", set.Name, err)
			}
		}
		sets[set.Name] = set
	}
	return sets, nil
}

// LoadFile reads rule sets from a YAML file
func LoadFile(path string) (map[string]RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rules file: %w", err)
	}
	defer f.Close()
	return LoadRuleSets(f)
}

// Resolve picks a rule set by name. File-defined sets shadow built-ins.
func Resolve(name, rulesFile string) (RuleSet, error) {
	if name == "" {
		name = DefaultSet
	}
	if rulesFile != "" {
		sets, err := LoadFile(rulesFile)
		if err != nil {
			return RuleSet{}, err
		}
		if set, ok := sets[name]; ok {
			return set, nil
		}
	}
	set, ok := Builtin(name)
	if !ok {
		return RuleSet{}, fmt.Errorf("unknown rule set %q", name)
	}
	return set, nil
}
