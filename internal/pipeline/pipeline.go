// Package pipeline turns one invoice file into an ExtractionResult.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zombor/invoice-extract/internal/acquire"
	"github.com/zombor/invoice-extract/internal/document"
	"github.com/zombor/invoice-extract/internal/fields"
	"github.com/zombor/invoice-extract/internal/imaging"
	"github.com/zombor/invoice-extract/internal/invoice"
	"github.com/zombor/invoice-extract/internal/ocr"
	"github.com/zombor/invoice-extract/internal/pdftext"
	"github.com/zombor/invoice-extract/internal/segment"
	"github.com/zombor/invoice-extract/internal/tabular"
)

// Config holds every tunable of a run. It is built once and shared read-only.
type Config struct {
	// StrictExtensions rejects unknown extensions instead of trying them as images
	StrictExtensions bool
	// Preprocess is applied before whole-page OCR of images
	Preprocess imaging.Preprocess
	OCR        ocr.Options
	Segment    segment.Config
	// RuleSet names the field rule set; RulesFile optionally adds sets from YAML
	RuleSet   string
	RulesFile string
	// CapabilityTimeout bounds each OCR, PDF text or table extraction call
	CapabilityTimeout time.Duration
	// TotalFromTables sums a PDF table's "Total" column when no total is found in the text
	TotalFromTables bool
}

// DefaultConfig returns the lenient raw-OCR configuration with the default rule set
func DefaultConfig() Config {
	return Config{
		Preprocess:        imaging.Preprocess{Threshold: imaging.Binarization{Method: imaging.MethodNone}},
		OCR:               ocr.Options{Language: "eng"},
		Segment:           segment.DefaultConfig(),
		RuleSet:           fields.DefaultSet,
		CapabilityTimeout: 2 * time.Minute,
	}
}

// Capabilities are the external engines the pipeline calls. A nil capability
// fails only the documents that need it.
type Capabilities struct {
	Recognizer ocr.Recognizer
	PageTexter pdftext.PageTexter
	Tables     tabular.Extractor
}

// Pipeline runs classification, acquisition, field extraction and table
// extraction for one document at a time. It is safe for concurrent use when
// its capabilities are.
type Pipeline struct {
	config     Config
	classifier document.Classifier
	acquirer   *acquire.Acquirer
	segmenter  *segment.Segmenter
	adapter    *tabular.Adapter
	fields     *fields.Extractor
	logger     *slog.Logger
}

// New creates a new Pipeline
func New(config Config, caps Capabilities, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	set, err := fields.Resolve(config.RuleSet, config.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("resolving rule set: %w", err)
	}
	extractor, err := fields.New(set, logger)
	if err != nil {
		return nil, fmt.Errorf("compiling rule set: %w", err)
	}

	p := &Pipeline{
		config:     config,
		classifier: document.Classifier{Strict: config.StrictExtensions},
		fields:     extractor,
		logger:     logger,
		acquirer: acquire.New(caps.Recognizer, caps.PageTexter, acquire.Config{
			Preprocess: config.Preprocess,
			OCR:        config.OCR,
			Timeout:    config.CapabilityTimeout,
		}, logger),
	}

	if caps.Recognizer != nil {
		segConfig := config.Segment
		if segConfig.OCR == (ocr.Options{}) {
			segConfig.OCR = config.OCR
		}
		p.segmenter = segment.New(ocr.NewTimed(caps.Recognizer, config.CapabilityTimeout), segConfig, logger)
	}
	if caps.Tables != nil {
		p.adapter = tabular.NewAdapter(caps.Tables, logger)
	}
	return p, nil
}

// Run extracts fields and tables from the document at path
func (p *Pipeline) Run(ctx context.Context, path string) (*invoice.Result, error) {
	start := time.Now()

	doc, err := p.classifier.Classify(path)
	if err != nil {
		return nil, err
	}

	acquired, err := p.acquirer.Acquire(ctx, doc)
	if err != nil {
		return nil, err
	}

	found := p.fields.Extract(acquired.Text)

	var tables []invoice.Table
	switch doc.Kind {
	case document.Image:
		tables, err = p.segment(ctx, doc, acquired)
	case document.PDF:
		tables, err = p.extractTables(ctx, doc)
		if err == nil && p.config.TotalFromTables && !found.Found(invoice.TotalAmount) {
			if total, ok := TotalFromTables(tables); ok {
				p.logger.Debug("total taken from tables", "path", path, "total", total)
				found[invoice.TotalAmount] = total
			}
		}
	}
	if err != nil {
		return nil, err
	}

	result := invoice.NewResult(found, tables)
	p.logger.Info("document extracted",
		"path", path,
		"kind", doc.Kind.String(),
		"tables", len(result.Tables),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (p *Pipeline) segment(ctx context.Context, doc document.Document, acquired *acquire.Acquired) ([]invoice.Table, error) {
	if p.segmenter == nil {
		return nil, invoice.NewError(invoice.KindTableExtraction, doc.Path, "segmenting", errNoCapability("OCR engine"))
	}
	tables, err := p.segmenter.Segment(ctx, acquired.Pixels)
	if err != nil {
		return nil, invoice.WithPath(err, doc.Path)
	}
	return tables, nil
}

func (p *Pipeline) extractTables(ctx context.Context, doc document.Document) ([]invoice.Table, error) {
	if p.adapter == nil {
		return nil, invoice.NewError(invoice.KindTableExtraction, doc.Path, "tabular extraction", errNoCapability("table extractor"))
	}
	if p.config.CapabilityTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.CapabilityTimeout)
		defer cancel()
	}
	return p.adapter.Tables(ctx, doc.Path)
}

type errNoCapability string

func (e errNoCapability) Error() string {
	return "no " + string(e) + " configured"
}
