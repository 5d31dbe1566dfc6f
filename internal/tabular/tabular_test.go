package tabular

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tsawler/tabula/tables"

	"github.com/zombor/invoice-extract/internal/invoice"
	"github.com/zombor/invoice-extract/internal/testpdf"
)

func TestTabular(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Tabular Suite")
}

type fakeExtractor struct {
	grids []Grid
	err   error
	opts  Options
	path  string
}

func (f *fakeExtractor) ExtractTables(_ context.Context, path string, opts Options) ([]Grid, error) {
	f.path = path
	f.opts = opts
	return f.grids, f.err
}

var _ = Describe("Adapter", func() {
	var (
		fake    *fakeExtractor
		adapter *Adapter
	)

	BeforeEach(func() {
		fake = &fakeExtractor{}
		adapter = NewAdapter(fake, nil)
	})

	It("asks for every table on every page", func() {
		_, err := adapter.Tables(context.Background(), "a.pdf")
		Expect(err).NotTo(HaveOccurred())
		Expect(fake.path).To(Equal("a.pdf"))
		Expect(fake.opts).To(Equal(Options{Pages: "all", MultipleTables: true}))
	})

	It("keeps tables, rows and cells in order", func() {
		fake.grids = []Grid{
			{{"Item", "Qty"}, {"Widget", "2"}},
			{{"Subtotal"}, {"Tax", "0.00", ""}},
		}
		got, err := adapter.Tables(context.Background(), "a.pdf")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal([]invoice.Table{
			{{"Item", "Qty"}, {"Widget", "2"}},
			{{"Subtotal"}, {"Tax", "0.00", ""}},
		}))
	})

	It("returns an empty list when nothing is found", func() {
		got, err := adapter.Tables(context.Background(), "a.pdf")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).NotTo(BeNil())
		Expect(got).To(BeEmpty())
	})

	It("reports extractor failures as table extraction errors", func() {
		fake.err = errors.New("corrupt xref")
		_, err := adapter.Tables(context.Background(), "a.pdf")
		Expect(err).To(MatchError(invoice.ErrTableExtraction))
		Expect(err.Error()).To(ContainSubstring("corrupt xref"))
	})
})

var _ = Describe("Normalize", func() {
	It("does not share rows with the input", func() {
		grids := []Grid{{{"a"}}}
		got := Normalize(grids)
		grids[0][0][0] = "b"
		Expect(got[0][0][0]).To(Equal("a"))
	})
})

var _ = Describe("ParsePages", func() {
	DescribeTable("valid specs",
		func(spec string, count int, want []int) {
			Expect(ParsePages(spec, count)).To(Equal(want))
		},
		Entry("all", "all", 3, []int{0, 1, 2}),
		Entry("empty means all", "", 2, []int{0, 1}),
		Entry("single page", "2", 3, []int{1}),
		Entry("ranges and lists", "3-4, 1", 4, []int{0, 2, 3}),
		Entry("duplicates", "1,1-2", 2, []int{0, 1}),
	)

	DescribeTable("invalid specs",
		func(spec string) {
			_, err := ParsePages(spec, 3)
			Expect(err).To(HaveOccurred())
		},
		Entry("out of range", "4"),
		Entry("zero", "0"),
		Entry("reversed range", "3-1"),
		Entry("not a number", "x"),
	)
})

var _ = Describe("Tabula", func() {
	var path string

	BeforeEach(func() {
		var err error
		path, err = testpdf.Write(GinkgoT().TempDir(), "table.pdf", testpdf.Grid(72, 700, 120, 14, [][]string{
			{"Item", "Qty", "Total"},
			{"Widget", "2", "$10.00"},
			{"Gadget", "1", "$5.00"},
			{"Bolt", "10", "$1.00"},
		}))
		Expect(err).NotTo(HaveOccurred())
	})

	It("extracts grids made of the page's text", func() {
		grids, err := NewTabula(tables.Config{}).ExtractTables(context.Background(), path, Options{Pages: "all", MultipleTables: true})
		Expect(err).NotTo(HaveOccurred())
		words := []string{"Item", "Qty", "Total", "Widget", "2", "$10.00", "Gadget", "1", "$5.00", "Bolt", "10", "$1.00"}
		for _, g := range grids {
			for _, row := range g {
				for _, cell := range row {
					for _, w := range strings.Fields(cell) {
						Expect(words).To(ContainElement(w))
					}
				}
			}
		}
	})

	It("rejects pages outside the document", func() {
		_, err := NewTabula(tables.Config{}).ExtractTables(context.Background(), path, Options{Pages: "2"})
		Expect(err).To(MatchError(ContainSubstring("out of range")))
	})

	It("fails for a missing file", func() {
		_, err := NewTabula(tables.Config{}).ExtractTables(context.Background(), filepath.Join(GinkgoT().TempDir(), "none.pdf"), Options{})
		Expect(err).To(MatchError(ContainSubstring("opening PDF")))
	})

	It("honors a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewTabula(tables.Config{}).ExtractTables(ctx, path, Options{})
		Expect(err).To(MatchError(context.Canceled))
	})
})
