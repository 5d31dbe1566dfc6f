package pdftext

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// PageTexter extracts the text layer of a PDF, one string per page
type PageTexter interface {
	PagesText(ctx context.Context, path string) ([]string, error)
}

// Join concatenates page texts in page order, separating pages with a
// newline when a page does not end in one.
func Join(pages []string) string {
	var b strings.Builder
	for _, p := range pages {
		b.WriteString(p)
		if p != "" && !strings.HasSuffix(p, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Fitz extracts page text with MuPDF through go-fitz
type Fitz struct{}

// NewFitz creates a new Fitz page texter
func NewFitz() *Fitz {
	return &Fitz{}
}

// PagesText returns the text of every page in order
func (f *Fitz) PagesText(ctx context.Context, path string) ([]string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("extracting text from page %d: %w", i+1, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
