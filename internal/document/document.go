package document

import (
	"path/filepath"
	"strings"

	"github.com/zombor/invoice-extract/internal/invoice"
)

// Kind is the processing route for a document
type Kind int

const (
	Unsupported Kind = iota
	Image
	PDF
)

func (k Kind) String() string {
	switch k {
	case Image:
		return "image"
	case PDF:
		return "pdf"
	default:
		return "unsupported"
	}
}

// ImageExtensions lists raster extensions the image decoder handles
var ImageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
	".webp": {},
	".heic": {},
	".heif": {},
}

// Document is a classified input file. It is immutable once created.
type Document struct {
	Path string
	Ext  string
	Kind Kind
}

// Classifier assigns a Kind from the filename extension
type Classifier struct {
	// Strict rejects extensions outside ImageExtensions and .pdf instead of
	// attempting them as images.
	Strict bool
}

// Classify returns the Document for path or an UNSUPPORTED_FORMAT error
func (c Classifier) Classify(path string) (Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	doc := Document{Path: path, Ext: ext}

	switch {
	case ext == ".pdf":
		doc.Kind = PDF
	case isImageExt(ext):
		doc.Kind = Image
	case c.Strict:
		doc.Kind = Unsupported
		return doc, invoice.NewError(invoice.KindUnsupportedFormat, path, "extension "+quoteExt(ext), nil)
	default:
		doc.Kind = Image
	}
	return doc, nil
}

// Classify uses the lenient classifier
func Classify(path string) (Document, error) {
	return Classifier{}.Classify(path)
}

// IsAllowed reports whether the extension would be accepted by a strict classifier
func IsAllowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".pdf" || isImageExt(ext)
}

func isImageExt(ext string) bool {
	_, ok := ImageExtensions[ext]
	return ok
}

func quoteExt(ext string) string {
	if ext == "" {
		return "(none)"
	}
	return `"` + ext + `"`
}
