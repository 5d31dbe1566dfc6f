package tabular

import (
	"context"
	"fmt"
	"strings"

	"github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/reader"
	"github.com/tsawler/tabula/tables"
)

// Tabula detects tables from the positioned text of each PDF page using
// tabula's geometric detector.
type Tabula struct {
	config tables.Config
}

// NewTabula creates a new Tabula extractor. A zero config uses tabula's defaults.
func NewTabula(config tables.Config) *Tabula {
	if config == (tables.Config{}) {
		config = tables.DefaultConfig()
	}
	return &Tabula{config: config}
}

// ExtractTables returns the tables found on the requested pages in page order
func (t *Tabula) ExtractTables(ctx context.Context, path string, opts Options) ([]Grid, error) {
	r, err := reader.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer r.Close()

	count, err := r.PageCount()
	if err != nil {
		return nil, fmt.Errorf("counting pages: %w", err)
	}
	pages, err := ParsePages(opts.Pages, count)
	if err != nil {
		return nil, err
	}

	detector := tables.NewGeometricDetector()
	if err := detector.Configure(t.config); err != nil {
		return nil, fmt.Errorf("configuring detector: %w", err)
	}

	var grids []Grid
	for _, idx := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := t.modelPage(r, idx)
		if err != nil {
			return nil, err
		}
		found, err := detector.Detect(page)
		if err != nil {
			return nil, fmt.Errorf("detecting tables on page %d: %w", idx+1, err)
		}
		for _, tbl := range found {
			grids = append(grids, gridOf(tbl))
			if !opts.MultipleTables {
				return grids, nil
			}
		}
	}
	return grids, nil
}

// modelPage converts a page's text fragments into the detector's page model
func (t *Tabula) modelPage(r *reader.Reader, idx int) (*model.Page, error) {
	p, err := r.GetPage(idx)
	if err != nil {
		return nil, fmt.Errorf("reading page %d: %w", idx+1, err)
	}
	fragments, err := r.ExtractTextFragments(p)
	if err != nil {
		return nil, fmt.Errorf("extracting text from page %d: %w", idx+1, err)
	}
	width, _ := p.Width()
	height, _ := p.Height()

	page := model.NewPage(width, height)
	page.Number = idx + 1
	for _, f := range fragments {
		page.RawText = append(page.RawText, model.TextFragment{
			Text:     f.Text,
			BBox:     model.NewBBox(f.X, f.Y, f.Width, f.Height),
			FontSize: f.FontSize,
			FontName: f.FontName,
		})
	}
	return page, nil
}

func gridOf(tbl *model.Table) Grid {
	g := make(Grid, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = strings.TrimSpace(c.Text)
		}
		g = append(g, cells)
	}
	return g
}
