//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/otiai10/gosseract/v2"

	"github.com/zombor/invoice-extract/internal/imaging"
)

// Tesseract recognizes text with a local Tesseract install via gosseract.
// Each call uses its own engine client so one instance can serve many
// goroutines.
type Tesseract struct {
	language string
}

// NewTesseract creates a new Tesseract recognizer. language is used when
// a call does not set Options.Language.
func NewTesseract(language string) (*Tesseract, error) {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{language: language}, nil
}

type tesseractResult struct {
	text string
	err  error
}

// Recognize runs Tesseract over img
func (t *Tesseract) Recognize(ctx context.Context, img image.Image, opts Options) (string, error) {
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return "", err
	}

	done := make(chan tesseractResult, 1)
	go func() {
		text, err := t.run(data, opts)
		done <- tesseractResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

func (t *Tesseract) run(data []byte, opts Options) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	lang := opts.Language
	if lang == "" {
		lang = t.language
	}
	if err := client.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("setting language: %w", err)
	}
	if opts.PageSegMode > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(opts.PageSegMode)); err != nil {
			return "", fmt.Errorf("setting page segmentation mode: %w", err)
		}
	}
	if opts.Whitelist != "" {
		if err := client.SetWhitelist(opts.Whitelist); err != nil {
			return "", fmt.Errorf("setting whitelist: %w", err)
		}
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("setting image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("running tesseract: %w", err)
	}
	return text, nil
}

// Close is a no-op; clients are released after every call
func (t *Tesseract) Close() error {
	return nil
}
