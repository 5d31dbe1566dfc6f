package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"golang.org/x/time/rate"
)

// ErrTesseractUnavailable is returned when the binary was built without
// Tesseract support. Rebuild with -tags ocr and libtesseract installed.
var ErrTesseractUnavailable = errors.New("tesseract support not compiled in (build with -tags ocr)")

// Options tunes a single recognition call
type Options struct {
	// Language is a Tesseract language code such as "eng" or "eng+deu"
	Language string
	// PageSegMode is the Tesseract page segmentation mode; 0 keeps the engine default
	PageSegMode int
	// Whitelist restricts recognized characters when non-empty
	Whitelist string
}

// Recognizer turns an image into text. An empty string is a valid result.
type Recognizer interface {
	// Recognize returns the text found in img
	Recognize(ctx context.Context, img image.Image, opts Options) (string, error)
	// Close releases resources held by the recognizer
	Close() error
}

// Limited wraps a Recognizer with a token-bucket rate limit
type Limited struct {
	next    Recognizer
	limiter *rate.Limiter
}

// NewLimited creates a new Limited recognizer allowing rps calls per second
func NewLimited(next Recognizer, rps float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Recognize waits for a token and delegates
func (l *Limited) Recognize(ctx context.Context, img image.Image, opts Options) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return l.next.Recognize(ctx, img, opts)
}

// Close closes the wrapped recognizer
func (l *Limited) Close() error {
	return l.next.Close()
}

// Timed bounds every call to the wrapped Recognizer
type Timed struct {
	next    Recognizer
	timeout time.Duration
}

// NewTimed wraps next with a per-call timeout. A non-positive timeout returns
// next unchanged.
func NewTimed(next Recognizer, timeout time.Duration) Recognizer {
	if timeout <= 0 {
		return next
	}
	return &Timed{next: next, timeout: timeout}
}

// Recognize delegates under a deadline
func (t *Timed) Recognize(ctx context.Context, img image.Image, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Recognize(ctx, img, opts)
}

// Close closes the wrapped recognizer
func (t *Timed) Close() error {
	return t.next.Close()
}
