package models

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrWrongFormat is matched by every *FormatError.
	ErrWrongFormat = errors.New("not an ELF/PE/COFF/Mach-O file")
	// ErrDecode is matched by every *DecodeError.
	ErrDecode = errors.New("decode error")
	// ErrOutOfRange is returned when seeking outside of the file.
	ErrOutOfRange = errors.New("position out of range")
	// ErrConfig is returned when a reader is configured with an unsupported
	// byte order, file class or address size.
	ErrConfig = errors.New("unsupported reader configuration")
	// ErrSectionResolving is returned by a section lookup that re-enters a
	// section which is still being materialized.
	ErrSectionResolving = errors.New("section not yet available")
)

// FormatError reports a container that could not be recognized or that
// breaks a hard rule of its format.
type FormatError struct {
	Format Format
	Reason string
}

func (e *FormatError) Error() string {
	if e.Format == FormatUnknown {
		return fmt.Sprintf("%v: %s", ErrWrongFormat, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrWrongFormat, e.Format, e.Reason)
}

func (e *FormatError) Is(target error) bool { return target == ErrWrongFormat }

// NewFormatError returns a *FormatError with a stack attached.
func NewFormatError(f Format, format string, a ...interface{}) error {
	return errors.WithStack(&FormatError{Format: f, Reason: fmt.Sprintf(format, a...)})
}

// DecodeError reports malformed content inside a section.
type DecodeError struct {
	Section string
	Offset  int64
	Err     string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s at offset 0x%x: %s", e.Section, e.Offset, e.Err)
}

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// NewDecodeError returns a *DecodeError with a stack attached.
func NewDecodeError(section string, off int64, format string, a ...interface{}) error {
	return errors.WithStack(&DecodeError{Section: section, Offset: off, Err: fmt.Sprintf(format, a...)})
}
