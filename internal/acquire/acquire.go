// Package acquire reads the raw text of a classified document.
package acquire

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/zombor/invoice-extract/internal/document"
	"github.com/zombor/invoice-extract/internal/imaging"
	"github.com/zombor/invoice-extract/internal/invoice"
	"github.com/zombor/invoice-extract/internal/ocr"
	"github.com/zombor/invoice-extract/internal/pdftext"
)

var (
	errNoRecognizer = errors.New("no OCR engine configured")
	errNoPageTexter = errors.New("no PDF text extractor configured")
)

// Acquired is the text of one document. Pixels is set for images only.
type Acquired struct {
	Text   string
	Pixels image.Image
	Pages  int
}

// Config controls acquisition
type Config struct {
	// Preprocess is applied to the decoded image before whole-page OCR
	Preprocess imaging.Preprocess
	OCR        ocr.Options
	// Timeout bounds each call into an OCR or PDF engine, 0 for none
	Timeout time.Duration
}

// Acquirer turns documents into text using an OCR engine for images and a
// PDF text extractor for PDFs
type Acquirer struct {
	recognizer ocr.Recognizer
	texter     pdftext.PageTexter
	config     Config
	logger     *slog.Logger
}

// New creates a new Acquirer. Either capability may be nil if the matching
// document kind is never acquired.
func New(recognizer ocr.Recognizer, texter pdftext.PageTexter, config Config, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{
		recognizer: recognizer,
		texter:     texter,
		config:     config,
		logger:     logger,
	}
}

// Acquire returns the text of doc. The source file is only read.
func (a *Acquirer) Acquire(ctx context.Context, doc document.Document) (*Acquired, error) {
	switch doc.Kind {
	case document.PDF:
		return a.acquirePDF(ctx, doc)
	case document.Image:
		return a.acquireImage(ctx, doc)
	}
	return nil, invoice.NewError(invoice.KindUnsupportedFormat, doc.Path, "extension "+extLabel(doc.Ext), nil)
}

func (a *Acquirer) acquirePDF(ctx context.Context, doc document.Document) (*Acquired, error) {
	if a.texter == nil {
		return nil, invoice.NewError(invoice.KindTextAcquisition, doc.Path, "pdf text", errNoPageTexter)
	}
	callCtx, cancel := a.callContext(ctx)
	defer cancel()

	start := time.Now()
	pages, err := a.texter.PagesText(callCtx, doc.Path)
	if err != nil {
		return nil, invoice.NewError(invoice.KindTextAcquisition, doc.Path, "pdf text", err)
	}
	a.logger.Debug("pdf text extracted", "path", doc.Path, "pages", len(pages), "duration_ms", time.Since(start).Milliseconds())
	return &Acquired{Text: Normalize(pdftext.Join(pages)), Pages: len(pages)}, nil
}

func (a *Acquirer) acquireImage(ctx context.Context, doc document.Document) (*Acquired, error) {
	img, err := imaging.DecodeFile(doc.Path)
	if err != nil {
		return nil, invoice.NewError(invoice.KindImageDecode, doc.Path, "decoding", err)
	}
	prepared, err := a.config.Preprocess.Apply(img)
	if err != nil {
		return nil, invoice.NewError(invoice.KindImageDecode, doc.Path, "preprocessing", err)
	}
	if a.recognizer == nil {
		return nil, invoice.NewError(invoice.KindTextAcquisition, doc.Path, "ocr", errNoRecognizer)
	}

	callCtx, cancel := a.callContext(ctx)
	defer cancel()

	start := time.Now()
	text, err := a.recognizer.Recognize(callCtx, prepared, a.config.OCR)
	if err != nil {
		return nil, invoice.NewError(invoice.KindTextAcquisition, doc.Path, "ocr", err)
	}
	a.logger.Debug("image text recognized", "path", doc.Path, "chars", len(text), "duration_ms", time.Since(start).Milliseconds())
	return &Acquired{Text: Normalize(text), Pixels: img, Pages: 1}, nil
}

func (a *Acquirer) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.Timeout > 0 {
		return context.WithTimeout(ctx, a.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// Normalize converts line endings to \n and applies NFKC so ligatures and
// full-width digits from PDF fonts and OCR match the field rules
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return norm.NFKC.String(s)
}

func extLabel(ext string) string {
	if ext == "" {
		return "(none)"
	}
	return `"` + ext + `"`
}
