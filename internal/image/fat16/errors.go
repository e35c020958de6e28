package fat16

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is against the typed errors below.
var (
	ErrIO            = errors.New("fat16: i/o error")
	ErrDecode        = errors.New("fat16: decode error")
	ErrInvalidLayout = errors.New("fat16: invalid layout")
)

// IOError reports that the byte source could not supply a field's bytes.
type IOError struct {
	Field  string
	Offset int64 // absolute offset in the byte source
	Length int
	Err    error
}

func (e *IOError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("read %d bytes at offset %d: %v", e.Length, e.Offset, e.Err)
	}
	return fmt.Sprintf("read %s (%d bytes at offset %d): %v", e.Field, e.Length, e.Offset, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// DecodeError reports a text field whose bytes are not valid in the
// configured encoding.
type DecodeError struct {
	Field    string
	Offset   int64
	Encoding string
	Raw      []byte
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at offset %d as %s (% x): %v", e.Field, e.Offset, e.Encoding, e.Raw, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// InvalidLayoutError reports boot sector geometry that cannot produce a
// consistent region map.
type InvalidLayoutError struct {
	Reason string
}

func (e *InvalidLayoutError) Error() string {
	return "invalid FAT16 layout: " + e.Reason
}

func (e *InvalidLayoutError) Is(target error) bool { return target == ErrInvalidLayout }

func invalidLayout(format string, args ...any) error {
	return &InvalidLayoutError{Reason: fmt.Sprintf(format, args...)}
}
