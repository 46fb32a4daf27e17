package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize is the largest frame the 16-bit length prefix can carry.
const MaxFrameSize = 1<<16 - 1

// WriteFrame writes s as one frame: a big-endian uint16 byte length
// followed by the UTF-8 bytes.
func WriteFrame(w io.Writer, s string) error {
	if len(s) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(s))
	}

	buf := make([]byte, 2+len(s))
	binary.BigEndian.PutUint16(buf, uint16(len(s)))
	copy(buf[2:], s)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame written by WriteFrame. A clean end of stream
// before the length prefix returns io.EOF.
func ReadFrame(r io.Reader) (string, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", err
	}

	buf := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	return string(buf), nil
}

// WriteMessage encodes m and writes it as a single frame.
func WriteMessage(w io.Writer, m Message) error {
	return WriteFrame(w, m.Encode())
}

// ReadMessage reads and decodes a single frame.
func ReadMessage(r io.Reader) (Message, error) {
	frame, err := ReadFrame(r)
	if err != nil {
		return Message{}, err
	}
	return Decode(frame)
}
