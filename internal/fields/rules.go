package fields

import (
	"fmt"
	"regexp"

	"github.com/zombor/invoice-extract/internal/invoice"
)

// Rule locates one field value with an anchor-and-capture pattern.
// Patterns are matched case-insensitively unless CaseSensitive is set.
type Rule struct {
	Name          string        `yaml:"name"`
	Field         invoice.Field `yaml:"field"`
	Pattern       string        `yaml:"pattern"`
	Group         int           `yaml:"group"`
	Trim          bool          `yaml:"trim"`
	CaseSensitive bool          `yaml:"case_sensitive"`
}

// RuleSet is an ordered battery of rules. Rules for the same field are
// tried in the order they appear.
type RuleSet struct {
	Name  string `yaml:"name"`
	Rules []Rule `yaml:"rules"`
}

// compiledRule is a Rule with its pattern ready to run
type compiledRule struct {
	Rule
	re *regexp.Regexp
}

func (r Rule) compile() (compiledRule, error) {
	if !isKnownField(r.Field) {
		return compiledRule{}, fmt.Errorf("rule %q: unknown field %q", r.Name, r.Field)
	}
	expr := r.Pattern
	if !r.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return compiledRule{}, fmt.Errorf("rule %q: compiling pattern: %w", r.Name, err)
	}
	if r.Group < 0 || r.Group > re.NumSubexp() {
		return compiledRule{}, fmt.Errorf("rule %q: group %d out of range (pattern has %d)", r.Name, r.Group, re.NumSubexp())
	}
	return compiledRule{Rule: r, re: re}, nil
}

func isKnownField(f invoice.Field) bool {
	for _, known := range invoice.AllFields {
		if f == known {
			return true
		}
	}
	return false
}

// Rules shared by the built-in sets.
var (
	fromLabel = Rule{
		Name:    "from-label",
		Field:   invoice.VendorName,
		Pattern: `From:\s*([^\n]+)`,
		Group:   1,
		Trim:    true,
	}
	vendorLabel = Rule{
		Name:    "vendor-name-label",
		Field:   invoice.VendorName,
		Pattern: `Vendor Name:\s*([^\n]+)`,
		Group:   1,
		Trim:    true,
	}
	// first-line takes the first non-blank line of text
	firstLine = Rule{
		Name:    "first-line",
		Field:   invoice.VendorName,
		Pattern: `(?m)^(.*?)\n`,
		Group:   1,
		Trim:    true,
	}
	invoiceDate = Rule{
		Name:    "invoice-date",
		Field:   invoice.InvoiceDate,
		Pattern: `(invoice.*date.*?)(\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|[a-z]+ \d{1,2}, \d{2,4})`,
		Group:   2,
	}
	anyDate = Rule{
		Name:    "date",
		Field:   invoice.InvoiceDate,
		Pattern: `(date.*?)(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})`,
		Group:   2,
	}
	slashDate = Rule{
		Name:    "date-slash",
		Field:   invoice.InvoiceDate,
		Pattern: `(Date\D*?)(\d{2}/\d{2}/\d{4})`,
		Group:   2,
	}
	invoiceNumber = Rule{
		Name:    "invoice-number",
		Field:   invoice.InvoiceNumber,
		Pattern: `(invoice.*number.*?)([\w-]+)`,
		Group:   2,
		Trim:    true,
	}
	// invoice-no reads "Invoice No." and "Invoice #" labels
	invoiceNo = Rule{
		Name:    "invoice-no",
		Field:   invoice.InvoiceNumber,
		Pattern: `(invoice\s*(?:no\.?|#)\s*:?\s*)([\w-]*\d[\w-]*)`,
		Group:   2,
	}
	// invoice-digits takes the first digit run after the word invoice, so a
	// date on an "Invoice Date" line wins when nothing better matched
	invoiceDigits = Rule{
		Name:    "invoice-digits",
		Field:   invoice.InvoiceNumber,
		Pattern: `(invoice.*?)(\d+)`,
		Group:   2,
		Trim:    true,
	}
	invoiceAfterLabel = Rule{
		Name:    "invoice-after-label",
		Field:   invoice.InvoiceNumber,
		Pattern: `(Invoice\D*?)(\d+)`,
		Group:   2,
	}
	totalDue = Rule{
		Name:    "total-due",
		Field:   invoice.TotalAmount,
		Pattern: `(total.*?due.*?)([\d,]+\.\d{2})`,
		Group:   2,
	}
	balanceDue = Rule{
		Name:    "balance-due",
		Field:   invoice.TotalAmount,
		Pattern: `(Balance Due\D*)([\d,]+\.\d{2})`,
		Group:   2,
	}
	anyTotal = Rule{
		Name:    "total",
		Field:   invoice.TotalAmount,
		Pattern: `(total.*?)([\d,]+\.\d{2})`,
		Group:   2,
	}
)

// Built-in rule sets by name
var builtin = map[string]RuleSet{
	"loose": {
		Name:  "loose",
		Rules: []Rule{firstLine, anyDate, invoiceDigits, anyTotal},
	},
	"strict": {
		Name:  "strict",
		Rules: []Rule{fromLabel, invoiceDate, invoiceNumber, totalDue},
	},
	"labeled": {
		Name:  "labeled",
		Rules: []Rule{vendorLabel, invoiceDate, invoiceNumber, totalDue},
	},
	"balance": {
		Name:  "balance",
		Rules: []Rule{firstLine, slashDate, invoiceAfterLabel, balanceDue},
	},
	"default": {
		Name: "default",
		Rules: []Rule{
			fromLabel, vendorLabel, firstLine,
			invoiceDate, anyDate,
			invoiceNumber, invoiceNo, invoiceDigits,
			totalDue, balanceDue, anyTotal,
		},
	},
}

// DefaultSet is the rule set used when none is named
const DefaultSet = "default"

// Builtin returns the named built-in rule set
func Builtin(name string) (RuleSet, bool) {
	set, ok := builtin[name]
	if !ok {
		return RuleSet{}, false
	}
	rules := make([]Rule, len(set.Rules))
	copy(rules, set.Rules)
	return RuleSet{Name: set.Name, Rules: rules}, true
}

// BuiltinNames lists the built-in rule set names
func BuiltinNames() []string {
	return []string{"default", "strict", "loose", "labeled", "balance"}
}
