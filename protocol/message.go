package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Delimiter separates the fields of a frame and the parts of a write payload.
const Delimiter = "|"

type MessageType uint64

const (
	ClientWriteRequest MessageType = iota
	WriteAcquireRequest
	WriteAcquireResponse
	WriteSyncRequest
	WriteReleaseRequest
	WriteSuccessAck
	WriteFailureAck
)

var messageTypeNames = [...]string{
	ClientWriteRequest:   "ClientWriteRequest",
	WriteAcquireRequest:  "WriteAcquireRequest",
	WriteAcquireResponse: "WriteAcquireResponse",
	WriteSyncRequest:     "WriteSyncRequest",
	WriteReleaseRequest:  "WriteReleaseRequest",
	WriteSuccessAck:      "WriteSuccessAck",
	WriteFailureAck:      "WriteFailureAck",
}

func (t MessageType) String() string {
	if int(t) < len(messageTypeNames) {
		return messageTypeNames[t]
	}
	return "MessageType(" + strconv.FormatUint(uint64(t), 10) + ")"
}

// ParseMessageType maps a wire name back to its MessageType.
func ParseMessageType(name string) (MessageType, bool) {
	for i, n := range messageTypeNames {
		if n == name {
			return MessageType(i), true
		}
	}
	return 0, false
}

// Message is one protocol message. SenderName must not contain the
// delimiter; Payload may contain it any number of times.
type Message struct {
	SenderName string
	Type       MessageType
	Timestamp  uint64
	Payload    string
}

// Encode renders m as senderName|type|timestamp|payload.
func (m Message) Encode() string {
	var b strings.Builder
	b.WriteString(m.SenderName)
	b.WriteString(Delimiter)
	b.WriteString(m.Type.String())
	b.WriteString(Delimiter)
	b.WriteString(strconv.FormatUint(m.Timestamp, 10))
	b.WriteString(Delimiter)
	b.WriteString(m.Payload)
	return b.String()
}

func (m Message) String() string {
	return m.Encode()
}

// Decode parses a frame produced by Encode. Everything after the third
// delimiter is the payload, kept verbatim.
func Decode(frame string) (Message, error) {
	if !utf8.ValidString(frame) {
		return Message{}, &ParseError{Frame: frame, Reason: "invalid UTF-8"}
	}

	fields := strings.SplitN(frame, Delimiter, 4)
	if len(fields) < 4 {
		return Message{}, &ParseError{Frame: frame, Reason: fmt.Sprintf("expected 4 fields, got %d", len(fields))}
	}
	if fields[0] == "" {
		return Message{}, &ParseError{Frame: frame, Reason: "empty sender name"}
	}

	t, ok := ParseMessageType(fields[1])
	if !ok {
		return Message{}, &ParseError{Frame: frame, Reason: fmt.Sprintf("unknown message type %q", fields[1])}
	}

	ts, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Message{}, &ParseError{Frame: frame, Reason: fmt.Sprintf("bad timestamp %q", fields[2])}
	}

	return Message{
		SenderName: fields[0],
		Type:       t,
		Timestamp:  ts,
		Payload:    fields[3],
	}, nil
}

// WritePayload joins a file name and a data line into a write payload.
func WritePayload(fileName, line string) string {
	return fileName + Delimiter + line
}

// ParseWritePayload splits a write payload at its first delimiter. The data
// line keeps any further delimiters.
func ParseWritePayload(payload string) (fileName, line string, err error) {
	fileName, line, found := strings.Cut(payload, Delimiter)
	if !found || fileName == "" {
		return "", "", &ParseError{Frame: payload, Reason: "payload is not fileName|dataLine"}
	}
	return fileName, line, nil
}
