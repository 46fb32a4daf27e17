package protocol

import (
	"bytes"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, "abc"))
	assert.Equal(t, []byte{0, 3, 'a', 'b', 'c'}, buf.Bytes())
}

func TestFrameSequence(t *testing.T) {
	var buf bytes.Buffer
	frames := []string{"first", "", "third|with|delims", "ünïcode"}
	for _, f := range frames {
		require.NoError(t, WriteFrame(&buf, f))
	}

	for _, want := range frames {
		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ReadFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, strings.Repeat("x", MaxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, buf.Len(), "nothing may be written for an oversized frame")

	require.NoError(t, WriteFrame(&buf, strings.Repeat("x", MaxFrameSize)))
}

func TestReadFrameTruncated(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0, 5, 'a', 'b'}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestMessageOverConnection(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	sent := Message{SenderName: "r1", Type: WriteSyncRequest, Timestamp: 5, Payload: "F.txt|x|y"}
	go func() {
		assert.NoError(t, WriteMessage(a, sent))
	}()

	got, err := ReadMessage(b)
	require.NoError(t, err)
	assert.Equal(t, sent, got)
}
