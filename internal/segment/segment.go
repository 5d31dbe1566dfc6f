// Package segment splits a raster invoice into table, row and cell regions
// and reads each cell with an OCR engine.
package segment

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"strings"

	"github.com/zombor/invoice-extract/internal/imaging"
	"github.com/zombor/invoice-extract/internal/invoice"
	"github.com/zombor/invoice-extract/internal/ocr"
)

// Level is a region's place in the table/row/cell tree
type Level int

const (
	LevelTable Level = iota
	LevelRow
	LevelCell
)

func (l Level) String() string {
	switch l {
	case LevelTable:
		return "table"
	case LevelRow:
		return "row"
	case LevelCell:
		return "cell"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// FullSpan as a Smear component dilates across the whole region
const FullSpan = -1

// Policy controls contour detection at one level
type Policy struct {
	// MinArea drops contours whose box area is not strictly greater
	MinArea int
	// Smear dilates ink by X and Y pixels before detection so nearby marks
	// join into one region
	Smear image.Point
	// StripRules erases ink runs spanning most of the region, such as
	// table borders and row separators
	StripRules bool
	// Sort orders contours by area, largest first, instead of discovery order
	Sort bool
}

// Region is a rectangle in the page with the regions found inside it.
// Only cells carry text.
type Region struct {
	Rect     image.Rectangle
	Level    Level
	Text     string
	Children []*Region
}

// DefaultReference and DefaultFraction give the default table area filter
var DefaultReference = image.Pt(100, 100)

const DefaultFraction = 0.2

// TableMinArea is the table area filter for a reference box and fraction
func TableMinArea(reference image.Point, fraction float64) int {
	return int(float64(reference.X*reference.Y) * fraction)
}

// Config configures a Segmenter
type Config struct {
	Binarization imaging.Binarization
	Table        Policy
	Row          Policy
	Cell         Policy
	// CellMinHeight upscales shorter cell crops before OCR, 0 to disable
	CellMinHeight int
	OCR           ocr.Options
}

// DefaultConfig returns the adaptive-threshold, area-sorted table setup with
// unfiltered rows and cells in discovery order
func DefaultConfig() Config {
	return Config{
		Binarization: imaging.DefaultBinarization(),
		Table: Policy{
			MinArea: TableMinArea(DefaultReference, DefaultFraction),
			Sort:    true,
		},
		CellMinHeight: 32,
	}
}

// Segmenter decomposes images into tables
type Segmenter struct {
	config     Config
	recognizer ocr.Recognizer
	logger     *slog.Logger
}

// New creates a new Segmenter
func New(recognizer ocr.Recognizer, config Config, logger *slog.Logger) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{
		config:     config,
		recognizer: recognizer,
		logger:     logger,
	}
}

// Segment returns the tables found in img. Cells are joined into rows and rows
// into tables in discovery order; tables follow the table policy's order.
func (s *Segmenter) Segment(ctx context.Context, img image.Image) ([]invoice.Table, error) {
	regions, err := s.Regions(ctx, img)
	if err != nil {
		return nil, err
	}
	return Tables(regions), nil
}

// Regions returns the table regions of img with their rows and cells
func (s *Segmenter) Regions(ctx context.Context, img image.Image) ([]*Region, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, invoice.NewError(invoice.KindImageDecode, "", "binarizing", imaging.ErrEmptyImage)
	}
	gray := imaging.Grayscale(img)
	mask, err := imaging.Binarize(gray, s.config.Binarization)
	if err != nil {
		return nil, invoice.NewError(invoice.KindImageDecode, "", "binarizing", err)
	}

	tables, err := s.decompose(ctx, gray, mask, mask.Bounds(), LevelTable)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("segmented image", "tables", len(tables))
	return tables, nil
}

func (s *Segmenter) policy(level Level) Policy {
	switch level {
	case LevelRow:
		return s.config.Row
	case LevelCell:
		return s.config.Cell
	}
	return s.config.Table
}

// decompose finds the regions of one level inside area and recurses into them
func (s *Segmenter) decompose(ctx context.Context, gray, mask *image.Gray, area image.Rectangle, level Level) ([]*Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, invoice.NewError(invoice.KindTableExtraction, "", fmt.Sprintf("segmenting %s", level), err)
	}
	p := s.policy(level)
	clean, detect := prepare(mask, area, p)
	contours := FilterAndOrder(FindContours(detect), p.MinArea, p.Sort)

	regions := make([]*Region, 0, len(contours))
	for _, c := range contours {
		r := &Region{Rect: c.Rect, Level: level}
		if level == LevelCell {
			text, err := s.readCell(ctx, gray, c.Rect)
			if err != nil {
				return nil, err
			}
			r.Text = text
		} else {
			children, err := s.decompose(ctx, gray, clean, c.Rect, level+1)
			if err != nil {
				return nil, err
			}
			r.Children = children
		}
		regions = append(regions, r)
	}
	return regions, nil
}

func (s *Segmenter) readCell(ctx context.Context, gray *image.Gray, rect image.Rectangle) (string, error) {
	crop := imaging.Crop(gray, rect)
	if s.config.CellMinHeight > 0 {
		crop = imaging.Upscale(crop, s.config.CellMinHeight)
	}
	text, err := s.recognizer.Recognize(ctx, crop, s.config.OCR)
	if err != nil {
		return "", invoice.NewError(invoice.KindTableExtraction, "", fmt.Sprintf("reading cell %v", rect), err)
	}
	return strings.TrimSpace(text), nil
}

// prepare crops the mask to area. clean has ruling lines stripped when the
// policy asks and is handed to the next level; detect is clean with the
// policy's smear applied. Both keep page coordinates.
func prepare(mask *image.Gray, area image.Rectangle, p Policy) (clean, detect *image.Gray) {
	clean = mask.SubImage(area).(*image.Gray)
	if p.StripRules {
		clean = stripRules(clean)
	}
	detect = clean
	if p.Smear.X != 0 || p.Smear.Y != 0 {
		rx, ry := p.Smear.X, p.Smear.Y
		if rx == FullSpan {
			rx = area.Dx()
		}
		if ry == FullSpan {
			ry = area.Dy()
		}
		detect = imaging.Dilate(clean, rx, ry)
	}
	return clean, detect
}

// ruleSpan is the fraction of a region's width or height an ink run must
// cover to count as a ruling line
const ruleSpan = 0.8

// stripRules returns a copy of mask without long horizontal or vertical ink runs
func stripRules(mask *image.Gray) *image.Gray {
	b := mask.Bounds()
	out := image.NewGray(b)
	if b.Empty() {
		return out
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		copy(out.Pix[out.PixOffset(b.Min.X, y):out.PixOffset(b.Max.X, y)], mask.Pix[mask.PixOffset(b.Min.X, y):mask.PixOffset(b.Max.X, y)])
	}

	paper := color.Gray{Y: imaging.Paper}
	minH := int(float64(b.Dx()) * ruleSpan)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		eraseRuns(b.Min.X, b.Max.X, minH, func(x int) bool { return mask.GrayAt(x, y).Y == imaging.Ink },
			func(x int) { out.SetGray(x, y, paper) })
	}
	minV := int(float64(b.Dy()) * ruleSpan)
	for x := b.Min.X; x < b.Max.X; x++ {
		eraseRuns(b.Min.Y, b.Max.Y, minV, func(y int) bool { return mask.GrayAt(x, y).Y == imaging.Ink },
			func(y int) { out.SetGray(x, y, paper) })
	}
	return out
}

// eraseRuns clears every run of ink in [lo, hi) at least minLen long
func eraseRuns(lo, hi, minLen int, ink func(int) bool, erase func(int)) {
	if minLen < 1 {
		minLen = 1
	}
	start := -1
	for i := lo; i <= hi; i++ {
		if i < hi && ink(i) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= minLen {
			for j := start; j < i; j++ {
				erase(j)
			}
		}
		start = -1
	}
}

// Tables flattens region trees into tables of rows of cell text
func Tables(regions []*Region) []invoice.Table {
	tables := make([]invoice.Table, 0, len(regions))
	for _, t := range regions {
		table := make(invoice.Table, 0, len(t.Children))
		for _, row := range t.Children {
			cells := make(invoice.Row, 0, len(row.Children))
			for _, cell := range row.Children {
				cells = append(cells, cell.Text)
			}
			table = append(table, cells)
		}
		tables = append(tables, table)
	}
	return tables
}
