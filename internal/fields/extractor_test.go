package fields

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-extract/internal/invoice"
)

func TestFields(t *testing.T) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Fields Suite")
}

var _ = Describe("Extractor", func() {
	var (
		setName   string
		text      string
		extractor *Extractor
		fields    invoice.Fields
	)

	BeforeEach(func() {
		setName = DefaultSet
	})

	JustBeforeEach(func() {
		var err error
		extractor, err = NewBuiltin(setName, nil)
		Expect(err).NotTo(HaveOccurred())
		fields = extractor.Extract(text)
	})

	When("the text has a first-line vendor, number and total", func() {
		BeforeEach(func() {
			text = "Acme Corp\nInvoice Number: 4521\nTotal Due: $1,204.50\n"
		})

		It("extracts the vendor from the first line", func() {
			Expect(fields[invoice.VendorName]).To(Equal("Acme Corp"))
		})

		It("extracts the invoice number", func() {
			Expect(fields[invoice.InvoiceNumber]).To(Equal("4521"))
		})

		It("extracts the total with separators", func() {
			Expect(fields[invoice.TotalAmount]).To(Equal("1,204.50"))
		})

		It("reports the missing date as Not Found", func() {
			Expect(fields[invoice.InvoiceDate]).To(Equal(invoice.NotFound))
		})

		It("always has exactly four keys", func() {
			Expect(fields).To(HaveLen(4))
		})

		It("is idempotent", func() {
			Expect(extractor.Extract(text)).To(Equal(fields))
		})
	})

	When("the text is empty", func() {
		BeforeEach(func() {
			text = ""
		})

		It("reports every field as Not Found", func() {
			Expect(fields).To(Equal(invoice.NewFields()))
		})
	})

	When("labels anchor the vendor", func() {
		BeforeEach(func() {
			text = "INVOICE\nFrom:   Globex Ltd  \nInvoice Date: March 5, 2024\nInvoice Number: INV-0042\nSubtotal 10.00\nTotal amount due 1,000.00\n"
		})

		It("prefers the From label over the first line", func() {
			Expect(fields[invoice.VendorName]).To(Equal("Globex Ltd"))
		})

		It("accepts a month-name date", func() {
			Expect(fields[invoice.InvoiceDate]).To(Equal("March 5, 2024"))
		})

		It("accepts a hyphenated number", func() {
			Expect(fields[invoice.InvoiceNumber]).To(Equal("INV-0042"))
		})

		It("anchors the total on the due line", func() {
			Expect(fields[invoice.TotalAmount]).To(Equal("1,000.00"))
		})
	})

	When("only a loose date keyword is present", func() {
		BeforeEach(func() {
			text = "Shop\nDate: 12/31/2023\n"
		})

		It("falls back to the loose date rule", func() {
			Expect(fields[invoice.InvoiceDate]).To(Equal("12/31/2023"))
		})
	})

	When("the first lines are blank", func() {
		BeforeEach(func() {
			text = "\n   \nInitech\nTotal 5.00\n"
		})

		It("takes the first non-blank line", func() {
			Expect(fields[invoice.VendorName]).To(Equal("Initech"))
			Expect(fields[invoice.TotalAmount]).To(Equal("5.00"))
		})
	})

	When("using the strict set", func() {
		BeforeEach(func() {
			setName = "strict"
			text = "Acme Corp\nInvoice Number: 4521\n"
		})

		It("does not fall back to the first line", func() {
			Expect(fields[invoice.VendorName]).To(Equal(invoice.NotFound))
			Expect(fields[invoice.InvoiceNumber]).To(Equal("4521"))
		})
	})

	When("using the balance set", func() {
		BeforeEach(func() {
			setName = "balance"
			text = "Hooli\nInvoice # 778\nDate: 01/02/2024\nBalance Due $ 88.10\n"
		})

		It("reads the balance due", func() {
			Expect(fields[invoice.TotalAmount]).To(Equal("88.10"))
			Expect(fields[invoice.InvoiceNumber]).To(Equal("778"))
			Expect(fields[invoice.InvoiceDate]).To(Equal("01/02/2024"))
		})
	})

	When("an invoice date line comes before an abbreviated number label", func() {
		BeforeEach(func() {
			text = "Acme Corp\nInvoice Date: 03/15/2024\nInvoice No. 4521\n"
		})

		It("reads the number from its label", func() {
			Expect(fields[invoice.InvoiceNumber]).To(Equal("4521"))
			Expect(fields[invoice.InvoiceDate]).To(Equal("03/15/2024"))
		})
	})

	When("using the loose set on an invoice date line", func() {
		BeforeEach(func() {
			setName = "loose"
			text = "Acme Corp\nInvoice Date: 03/15/2024\nInvoice No. 4521\n"
		})

		It("takes the first digits after the invoice keyword", func() {
			Expect(fields[invoice.InvoiceNumber]).To(Equal("03"))
		})
	})

	When("a field's anchor is missing", func() {
		BeforeEach(func() {
			text = "Acme Corp\nInvoice Number: 4521\nDate: 1/2/24\n"
		})

		It("only that field is Not Found", func() {
			Expect(fields[invoice.TotalAmount]).To(Equal(invoice.NotFound))
			Expect(fields[invoice.VendorName]).NotTo(Equal(invoice.NotFound))
			Expect(fields[invoice.InvoiceNumber]).NotTo(Equal(invoice.NotFound))
			Expect(fields[invoice.InvoiceDate]).NotTo(Equal(invoice.NotFound))
		})
	})
})

var _ = Describe("Matches", func() {
	It("names the winning rule", func() {
		extractor, err := NewBuiltin("", nil)
		Expect(err).NotTo(HaveOccurred())
		matches := extractor.Matches("Acme Corp\nTotal Due: 3.00\n")
		Expect(matches).To(ConsistOf(
			Match{Field: invoice.VendorName, Rule: "first-line", Value: "Acme Corp"},
			Match{Field: invoice.TotalAmount, Rule: "total-due", Value: "3.00"},
		))
	})
})

var _ = Describe("New", func() {
	It("rejects a group beyond the pattern", func() {
		_, err := New(RuleSet{Name: "bad", Rules: []Rule{{Name: "r", Field: invoice.TotalAmount, Pattern: `(\d+)`, Group: 2}}}, nil)
		Expect(err).To(MatchError(ContainSubstring("group 2 out of range")))
	})

	It("rejects an unknown field", func() {
		_, err := New(RuleSet{Name: "bad", Rules: []Rule{{Name: "r", Field: "Tax", Pattern: `x`}}}, nil)
		Expect(err).To(MatchError(ContainSubstring("unknown field")))
	})

	It("rejects an unknown built-in", func() {
		_, err := NewBuiltin("nope", nil)
		Expect(err).To(MatchError(ContainSubstring("unknown rule set")))
	})
})

var _ = Describe("LoadRuleSets", func() {
	var (
		input string
		sets  map[string]RuleSet
		err   error
	)

	JustBeforeEach(func() {
		sets, err = LoadRuleSets(strings.NewReader(input))
	})

	When("the file is valid", func() {
		BeforeEach(func() {
			input = `
rule_sets:
  - name: acme
    rules:
      - field: Invoice Number
        pattern: 'Ref\s*#?\s*(\d+)'
        group: 1
      - name: vendor
        field: Vendor Name
        pattern: '^(ACME[^\n]*)'
        group: 1
        trim: true
        case_sensitive: true
`
		})

		It("decodes every rule", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(sets).To(HaveKey("acme"))
			Expect(sets["acme"].Rules).To(HaveLen(2))
			Expect(sets["acme"].Rules[0].Name).To(Equal("acme-0"))
			Expect(sets["acme"].Rules[1].CaseSensitive).To(BeTrue())
		})

		It("produces a working extractor", func() {
			extractor, err := New(sets["acme"], nil)
			Expect(err).NotTo(HaveOccurred())
			fields := extractor.Extract("ACME Widgets\nRef #991\n")
			Expect(fields[invoice.InvoiceNumber]).To(Equal("991"))
			Expect(fields[invoice.VendorName]).To(Equal("ACME Widgets"))
		})
	})

	When("a pattern does not compile", func() {
		BeforeEach(func() {
			input = "rule_sets:\n  - name: bad\n    rules:\n      - field: Total Amount\n        pattern: '('\n"
		})

		It("returns an error", func() {
			Expect(err).To(MatchError(ContainSubstring("compiling pattern")))
		})
	})

	When("a key is misspelled", func() {
		BeforeEach(func() {
			input = "rule_sets:\n  - name: bad\n    rulez: []\n"
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("Resolve", func() {
	It("lets a rules file shadow a built-in", func() {
		path := filepath.Join(GinkgoT().TempDir(), "rules.yaml")
		Expect(os.WriteFile(path, []byte("rule_sets:\n  - name: default\n    rules:\n      - field: Total Amount\n        pattern: 'Sum (\\d+)'\n        group: 1\n"), 0644)).To(Succeed())

		set, err := Resolve("default", path)
		Expect(err).NotTo(HaveOccurred())
		Expect(set.Rules).To(HaveLen(1))
	})

	It("falls back to built-ins", func() {
		set, err := Resolve("loose", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(set.Name).To(Equal("loose"))
	})
})
