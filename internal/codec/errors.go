package codec

import (
	"errors"
	"fmt"
)

// TruncatedDataError reports a read past the end of the buffer.
type TruncatedDataError struct {
	// Offset is the reader position where the read started.
	Offset int

	// What names the value being read (e.g. "int32", "string").
	What string

	// Need is the number of bytes the read required.
	Need int

	// Have is the number of bytes that remained.
	Have int
}

// Error implements the error interface.
func (e *TruncatedDataError) Error() string {
	return fmt.Sprintf("truncated data: reading %s at offset %d needs %d bytes, %d remain", e.What, e.Offset, e.Need, e.Have)
}

// FormatError reports malformed input: a length prefix above the configured
// maximum, an invalid varint, invalid UTF-8 or an out-of-range enum byte.
type FormatError struct {
	Offset  int
	What    string
	Message string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("format error: %s at offset %d: %s", e.What, e.Offset, e.Message)
}

// IsTruncated reports whether err is (or wraps) a TruncatedDataError.
func IsTruncated(err error) bool {
	var te *TruncatedDataError
	return errors.As(err, &te)
}

// IsFormat reports whether err is (or wraps) a FormatError.
func IsFormat(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

func tooLong(offset int, what string, n uint64, max int) *FormatError {
	return &FormatError{
		Offset:  offset,
		What:    what,
		Message: fmt.Sprintf("length %d exceeds maximum %d", n, max),
	}
}
