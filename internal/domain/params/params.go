// Package params decodes XRPC query strings into typed parameter maps
// per the method's declared lexicon parameter schema (spec.md §4.2).
package params

import (
	"net/url"
	"strconv"

	"github.com/xrpc-run/xrpcd/internal/domain/lexicon"
)

// Decode builds a parameter map from raw query values, consulting schema
// for which keys to look at, whether each is an array, and how to decode
// its scalar values. Absent optional keys are omitted entirely (never
// stored as nil), matching the HandlerInput/Params data-model invariant.
func Decode(schema []lexicon.ParamDef, values url.Values) map[string]any {
	out := make(map[string]any, len(schema))
	for _, pd := range schema {
		raw, present := values[pd.Name]
		if !present || len(raw) == 0 {
			continue
		}
		if pd.Array {
			arr := make([]any, 0, len(raw))
			for _, v := range raw {
				arr = append(arr, decodeScalar(pd.Type, v))
			}
			out[pd.Name] = arr
			continue
		}
		out[pd.Name] = decodeScalar(pd.Type, raw[0])
	}
	return out
}

// decodeScalar implements the per-type decode table in spec.md §4.2.
func decodeScalar(t lexicon.ParamType, v string) any {
	switch t {
	case lexicon.ParamInteger:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return int64(0)
		}
		return n
	case lexicon.ParamFloat:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return float64(0)
		}
		return f
	case lexicon.ParamBoolean:
		return v == "true"
	case lexicon.ParamString, lexicon.ParamDatetime:
		fallthrough
	default:
		return v
	}
}
