// Package store keeps extraction history and uploaded documents.
package store

import (
	"errors"
	"time"

	"github.com/zombor/invoice-extract/internal/invoice"
)

// ErrNotFound is returned for unknown record IDs
var ErrNotFound = errors.New("record not found")

// Record is one stored extraction attempt. Failed attempts keep Error and
// ErrorKind and have no Result.
type Record struct {
	ID        string          `json:"id"`
	Filename  string          `json:"filename"`
	Path      string          `json:"path,omitempty"`
	Kind      string          `json:"kind"`
	Result    *invoice.Result `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind invoice.Kind    `json:"error_kind,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Duration  time.Duration   `json:"duration_ns"`
}

// Failed reports whether the extraction failed
func (r *Record) Failed() bool {
	return r.Error != ""
}

func (r *Record) setError(err error) {
	if err == nil {
		return
	}
	r.Error = err.Error()
	r.ErrorKind = invoice.KindOf(err)
}
