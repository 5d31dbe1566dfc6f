package invoice

import (
	"errors"
	"fmt"
)

// Kind tags a pipeline failure
type Kind string

const (
	KindUnsupportedFormat Kind = "UNSUPPORTED_FORMAT"
	KindImageDecode       Kind = "IMAGE_DECODE"
	KindTextAcquisition   Kind = "TEXT_ACQUISITION"
	KindTableExtraction   Kind = "TABLE_EXTRACTION"
)

// Sentinels matched by errors.Is against any *Error of the same kind
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrImageDecode       = errors.New("image decode failed")
	ErrTextAcquisition   = errors.New("text acquisition failed")
	ErrTableExtraction   = errors.New("table extraction failed")
)

// Error is a tagged pipeline failure for one document
type Error struct {
	Kind    Kind
	Path    string
	Message string
	Cause   error
}

// NewError creates a new tagged Error
func NewError(kind Kind, path, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Path:    path,
		Message: message,
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for the error's kind
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

func sentinel(k Kind) error {
	switch k {
	case KindUnsupportedFormat:
		return ErrUnsupportedFormat
	case KindImageDecode:
		return ErrImageDecode
	case KindTextAcquisition:
		return ErrTextAcquisition
	case KindTableExtraction:
		return ErrTableExtraction
	}
	return nil
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// WithPath fills in the document path of an *Error that has none
func WithPath(err error, path string) error {
	var e *Error
	if errors.As(err, &e) && e.Path == "" {
		e.Path = path
	}
	return err
}
