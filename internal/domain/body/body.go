package body

import (
	"encoding/json"
	"io"

	"github.com/xrpc-run/xrpcd/internal/domain/xrpcerror"
)

// Decoded is the result of reading and decoding a request (or
// pipe-through response) body: spec.md's HandlerInput { encoding, body }.
type Decoded struct {
	ContentType string
	// Value is one of: map[string]any / []any / scalar (JSON, IPLD
	// rehydrated), string (text/*), or []byte (anything else).
	Value any
}

// ReadLimited reads r up to blobLimit+1 bytes, returning PayloadTooLarge
// if more than blobLimit bytes are present. If contentLength is
// non-negative and already exceeds blobLimit, it rejects before reading
// at all (the "before reading" fast path in spec.md §4.2).
func ReadLimited(r io.Reader, contentLength int64, blobLimit int64) ([]byte, *xrpcerror.XRPCError) {
	if contentLength >= 0 && contentLength > blobLimit {
		return nil, xrpcerror.PayloadTooLarge("request entity too large")
	}
	limited := io.LimitReader(r, blobLimit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, xrpcerror.InvalidRequest("failed to read request body: %v", err)
	}
	if int64(len(data)) > blobLimit {
		return nil, xrpcerror.PayloadTooLarge("request entity too large")
	}
	return data, nil
}

// Present implements the Empty-body rule from spec.md §4.2: a body is
// "present" if it is non-empty OR a content-type header is set.
func Present(raw []byte, contentType string) bool {
	return len(raw) > 0 || contentType != ""
}

// Decode turns raw decompressed bytes plus a content-type into a Decoded
// value, per the table in spec.md §4.2:
//   - application/json (or anything IsJSONType) -> JSON-decode, then
//     rehydrate IPLD tagged objects.
//   - text/* -> string.
//   - anything else -> raw bytes.
func Decode(contentType string, raw []byte) (*Decoded, *xrpcerror.XRPCError) {
	switch {
	case IsJSONType(contentType):
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, xrpcerror.InvalidRequest("invalid json body: %v", err)
		}
		rehydrated, err := RehydrateJSON(v)
		if err != nil {
			return nil, xrpcerror.InvalidRequest("invalid ipld value: %v", err)
		}
		return &Decoded{ContentType: contentType, Value: rehydrated}, nil
	case IsTextType(contentType):
		return &Decoded{ContentType: contentType, Value: string(raw)}, nil
	default:
		return &Decoded{ContentType: contentType, Value: raw}, nil
	}
}
