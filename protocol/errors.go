package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrParseFault is wrapped by every decoding failure.
	ErrParseFault = errors.New("malformed frame")

	// ErrFrameTooLarge is returned when a frame does not fit the 16-bit
	// length prefix.
	ErrFrameTooLarge = errors.New("frame too large")
)

// ParseError describes a frame or payload that could not be decoded.
type ParseError struct {
	Frame  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s (frame %q)", ErrParseFault, e.Reason, e.Frame)
}

func (e *ParseError) Unwrap() error {
	return ErrParseFault
}
