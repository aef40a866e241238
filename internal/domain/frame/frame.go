// Package frame implements the binary subscription framing protocol
// (spec.md §4.3): a frame is two concatenated CBOR items, a header and a
// body, sent as one binary WebSocket message.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

const (
	opMessage int8 = 1
	opError   int8 = -1
)

var errTooManyItems = errors.New("too many CBOR data items in frame")

// header is the wire shape of a frame's first CBOR item.
type header struct {
	Op int8    `cbor:"op"`
	T  *string `cbor:"t,omitempty"`
}

// errorBody is the wire shape of an Error frame's body.
type errorBody struct {
	Error   string  `cbor:"error"`
	Message *string `cbor:"message,omitempty"`
}

// Frame is the discriminated union described in spec.md §3: a Message
// frame carries an opaque CBOR body plus an optional type tag; an Error
// frame carries a required error name and an optional message.
type Frame struct {
	op int8

	// Message variant fields.
	t        string
	hasT     bool
	bodyCBOR []byte // raw CBOR-encoded body, opaque to this package

	// Error variant fields.
	errorName    string
	errorMessage string
	hasMessage   bool
}

// NewMessage builds a Message frame. body is CBOR-encoded with
// cbor.Marshal to produce the opaque payload; t, if non-empty, becomes
// the header's optional type tag.
func NewMessage(t string, body any) (*Frame, error) {
	encoded, err := cbor.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("frame: encode message body: %w", err)
	}
	f := &Frame{op: opMessage, bodyCBOR: encoded}
	if t != "" {
		f.t = t
		f.hasT = true
	}
	return f, nil
}

// NewError builds an Error frame. message is optional; pass "" to omit it.
func NewError(name, message string) *Frame {
	f := &Frame{op: opError, errorName: name}
	if message != "" {
		f.errorMessage = message
		f.hasMessage = true
	}
	return f
}

// IsMessage reports whether this is a Message-variant frame.
func (f *Frame) IsMessage() bool { return f.op == opMessage }

// IsError reports whether this is an Error-variant frame.
func (f *Frame) IsError() bool { return f.op == opError }

// Type returns the Message frame's optional "t" tag and whether it was set.
func (f *Frame) Type() (string, bool) { return f.t, f.hasT }

// DecodeBody CBOR-decodes a Message frame's opaque body into v.
func (f *Frame) DecodeBody(v any) error {
	if !f.IsMessage() {
		return errors.New("frame: DecodeBody called on non-Message frame")
	}
	return cbor.Unmarshal(f.bodyCBOR, v)
}

// RawBody returns a Message frame's body as still-encoded CBOR bytes.
func (f *Frame) RawBody() []byte { return f.bodyCBOR }

// ErrorName returns an Error frame's required error name.
func (f *Frame) ErrorName() string { return f.errorName }

// ErrorMessage returns an Error frame's optional message and whether it
// was set.
func (f *Frame) ErrorMessage() (string, bool) { return f.errorMessage, f.hasMessage }

// Equal reports whether two frames carry the same header and body by
// value (bytewise for the opaque Message body).
func (f *Frame) Equal(other *Frame) bool {
	if f == nil || other == nil {
		return f == other
	}
	if f.op != other.op || f.hasT != other.hasT || f.t != other.t {
		return false
	}
	if f.op == opMessage {
		return bytes.Equal(f.bodyCBOR, other.bodyCBOR)
	}
	return f.errorName == other.errorName &&
		f.hasMessage == other.hasMessage &&
		f.errorMessage == other.errorMessage
}

// ToBytes serializes the frame as two concatenated CBOR items: the
// header, then the body.
func (f *Frame) ToBytes() ([]byte, error) {
	h := header{Op: f.op}
	if f.op == opMessage && f.hasT {
		t := f.t
		h.T = &t
	}
	headerBytes, err := cbor.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("frame: encode header: %w", err)
	}

	var bodyBytes []byte
	if f.op == opMessage {
		bodyBytes = f.bodyCBOR
	} else {
		eb := errorBody{Error: f.errorName}
		if f.hasMessage {
			msg := f.errorMessage
			eb.Message = &msg
		}
		bodyBytes, err = cbor.Marshal(eb)
		if err != nil {
			return nil, fmt.Errorf("frame: encode error body: %w", err)
		}
	}

	out := make([]byte, 0, len(headerBytes)+len(bodyBytes))
	out = append(out, headerBytes...)
	out = append(out, bodyBytes...)
	return out, nil
}

// FromBytes parses a wire frame per spec.md §4.3:
//  1. Decode CBOR items from data; require 1 <= count <= 2.
//  2. The first item is the header; op must be 1 or -1, and if Message,
//     t (if present) must be a string.
//  3. The second item must exist ("Missing frame body"); for Error
//     frames it must match { error: string, message?: string }
//     ("Invalid error frame body").
//  4. More than 2 items yields "Too many CBOR data items in frame".
//     Truncated CBOR propagates the decoder's own error. A header not
//     matching the shape above yields "Invalid frame header".
func FromBytes(data []byte) (*Frame, error) {
	dec := cbor.NewDecoder(bytes.NewReader(data))

	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("frame: invalid frame header: %w", err)
	}
	if h.Op != opMessage && h.Op != opError {
		return nil, errors.New("frame: invalid frame header")
	}

	var rawBody cbor.RawMessage
	if err := dec.Decode(&rawBody); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("frame: missing frame body")
		}
		return nil, fmt.Errorf("frame: missing frame body: %w", err)
	}

	// A third successful decode means there were more than two items.
	var extra cbor.RawMessage
	if err := dec.Decode(&extra); err == nil {
		return nil, errTooManyItems
	} else if !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("frame: %w", err)
	}

	f := &Frame{op: h.Op}
	if h.Op == opMessage {
		if h.T != nil {
			f.t = *h.T
			f.hasT = true
		}
		f.bodyCBOR = rawBody
		return f, nil
	}

	var eb errorBody
	if err := cbor.Unmarshal(rawBody, &eb); err != nil || eb.Error == "" {
		return nil, errors.New("frame: invalid error frame body")
	}
	f.errorName = eb.Error
	if eb.Message != nil {
		f.errorMessage = *eb.Message
		f.hasMessage = true
	}
	return f, nil
}
