package tabular

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/zombor/invoice-extract/internal/invoice"
)

// Grid is a detected table as rows of cell strings
type Grid [][]string

// Options controls which tables an Extractor returns
type Options struct {
	// Pages is "all" or a list of 1-based pages and ranges such as "1,3-4"
	Pages string
	// MultipleTables returns every table found instead of only the first
	MultipleTables bool
}

// Extractor detects whole tables in a PDF
type Extractor interface {
	ExtractTables(ctx context.Context, path string, opts Options) ([]Grid, error)
}

// Adapter runs an Extractor over every page and normalizes its grids into
// invoice tables. Row and cell order and ragged row lengths are preserved.
type Adapter struct {
	extractor Extractor
	logger    *slog.Logger
}

// NewAdapter creates a new Adapter
func NewAdapter(extractor Extractor, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{extractor: extractor, logger: logger}
}

// Tables returns every table in the document at path
func (a *Adapter) Tables(ctx context.Context, path string) ([]invoice.Table, error) {
	grids, err := a.extractor.ExtractTables(ctx, path, Options{Pages: "all", MultipleTables: true})
	if err != nil {
		return nil, invoice.NewError(invoice.KindTableExtraction, path, "tabular extraction", err)
	}
	tables := Normalize(grids)
	a.logger.Debug("tables extracted", "path", path, "count", len(tables))
	return tables, nil
}

// Normalize copies grids into invoice tables verbatim. The result is never nil.
func Normalize(grids []Grid) []invoice.Table {
	tables := make([]invoice.Table, 0, len(grids))
	for _, g := range grids {
		t := make(invoice.Table, 0, len(g))
		for _, row := range g {
			r := make(invoice.Row, len(row))
			copy(r, row)
			t = append(t, r)
		}
		tables = append(tables, t)
	}
	return tables
}

// ParsePages expands a page spec into sorted 0-based page indexes
func ParsePages(spec string, count int) ([]int, error) {
	spec = strings.TrimSpace(strings.ToLower(spec))
	if spec == "" || spec == "all" {
		pages := make([]int, count)
		for i := range pages {
			pages[i] = i
		}
		return pages, nil
	}

	seen := make(map[int]bool)
	var pages []int
	add := func(p int) error {
		if p < 1 || p > count {
			return fmt.Errorf("page %d out of range 1-%d", p, count)
		}
		if !seen[p] {
			seen[p] = true
			pages = append(pages, p-1)
		}
		return nil
	}

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid page %q", part)
		}
		end := start
		if isRange {
			end, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || end < start {
				return nil, fmt.Errorf("invalid page range %q", part)
			}
		}
		for p := start; p <= end; p++ {
			if err := add(p); err != nil {
				return nil, err
			}
		}
	}
	sortInts(pages)
	return pages, nil
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
