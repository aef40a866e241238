package body

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	cid "github.com/ipfs/go-cid"
)

// CIDLink represents a lexicon "cid-link" value. On the wire it is the
// self-describing IPLD-JSON tagged object {"$link": "<cid string>"}.
type CIDLink struct {
	Cid cid.Cid
}

// MarshalJSON emits the {"$link": "..."} wire shape.
func (c CIDLink) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"$link": c.Cid.String()})
}

// Equals reports whether two CIDLinks refer to the same CID, per
// testable scenario #3 in spec.md ("reconstructs the same CID by
// .equals").
func (c CIDLink) Equals(other CIDLink) bool {
	return c.Cid.Equals(other.Cid)
}

// Bytes represents a lexicon "bytes" value, wire-encoded as
// {"$bytes": "<base64>"}.
type Bytes []byte

// MarshalJSON emits the {"$bytes": "..."} wire shape.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"$bytes": base64.StdEncoding.EncodeToString(b)})
}

// RehydrateJSON walks a generically-decoded JSON value (the output of
// json.Unmarshal into `any`) and replaces self-describing IPLD-JSON
// tagged objects with their typed Go representations: {"$link": s} ->
// CIDLink, {"$bytes": s} -> Bytes. Any map or slice is walked
// recursively; everything else passes through unchanged.
func RehydrateJSON(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 1 {
			if linkStr, ok := val["$link"].(string); ok {
				c, err := cid.Decode(linkStr)
				if err != nil {
					return nil, fmt.Errorf("invalid cid-link %q: %w", linkStr, err)
				}
				return CIDLink{Cid: c}, nil
			}
			if bytesStr, ok := val["$bytes"].(string); ok {
				raw, err := base64.StdEncoding.DecodeString(bytesStr)
				if err != nil {
					return nil, fmt.Errorf("invalid bytes value: %w", err)
				}
				return Bytes(raw), nil
			}
		}
		out := make(map[string]any, len(val))
		for k, child := range val {
			rehydrated, err := RehydrateJSON(child)
			if err != nil {
				return nil, err
			}
			out[k] = rehydrated
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			rehydrated, err := RehydrateJSON(child)
			if err != nil {
				return nil, err
			}
			out[i] = rehydrated
		}
		return out, nil
	default:
		return v, nil
	}
}
