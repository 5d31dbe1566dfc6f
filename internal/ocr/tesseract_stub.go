//go:build !ocr

package ocr

import (
	"context"
	"image"
)

// Tesseract is unavailable in this build
type Tesseract struct{}

// NewTesseract always fails in builds without the ocr tag
func NewTesseract(language string) (*Tesseract, error) {
	return nil, ErrTesseractUnavailable
}

// Recognize always fails in builds without the ocr tag
func (t *Tesseract) Recognize(ctx context.Context, img image.Image, opts Options) (string, error) {
	return "", ErrTesseractUnavailable
}

// Close does nothing
func (t *Tesseract) Close() error {
	return nil
}
