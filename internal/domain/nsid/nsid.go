// Package nsid parses namespace identifiers out of XRPC request paths.
//
// An NSID is a reverse-DNS-style dotted ASCII string: two or more segments
// of alphanumerics with interior hyphens, no leading/trailing dot or
// hyphen, no empty segments. Parsing operates on the raw path bytes with a
// single forward scan — no regex, no allocation beyond the returned
// substring.
package nsid

import (
	"net/url"
	"strings"
)

// xrpcPrefix is the fixed path prefix every XRPC request must begin with.
const xrpcPrefix = "/xrpc/"

// ErrInvalidPath is returned when the input does not contain a valid
// "/xrpc/<nsid>" path. Callers in the dispatcher translate this into an
// InvalidRequest wire error.
type ErrInvalidPath struct {
	Reason string
}

func (e *ErrInvalidPath) Error() string {
	return "invalid xrpc path: " + e.Reason
}

func isAlnum(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Parse extracts the NSID from a full URL or a bare path. It accepts an
// optional trailing slash before end-of-string or '?', and stops scanning
// at '?' (query string).
func Parse(input string) (string, error) {
	path := input
	if looksLikeURL(input) {
		u, err := url.Parse(input)
		if err != nil {
			return "", &ErrInvalidPath{Reason: "malformed url"}
		}
		path = u.Path
	}

	if len(path) < len(xrpcPrefix) || path[:len(xrpcPrefix)] != xrpcPrefix {
		return "", &ErrInvalidPath{Reason: "missing /xrpc/ prefix"}
	}

	i := len(xrpcPrefix)
	start := i
	n := len(path)
	prevAlnum := false

	for i < n {
		b := path[i]
		switch {
		case isAlnum(b):
			prevAlnum = true
			i++
		case (b == '-' || b == '.') && prevAlnum:
			prevAlnum = false
			i++
		case b == '/':
			// A single trailing slash is allowed only right before the
			// end of the path or a '?'.
			if i+1 == n || path[i+1] == '?' {
				goto done
			}
			return "", &ErrInvalidPath{Reason: "unexpected '/' in nsid"}
		case b == '?':
			goto done
		default:
			return "", &ErrInvalidPath{Reason: "invalid character in nsid"}
		}
	}

done:
	nsidStr := path[start:i]
	if len(nsidStr) < 2 {
		return "", &ErrInvalidPath{Reason: "nsid too short"}
	}
	// A leading separator can never be accepted by the scan above (it
	// requires a preceding alphanumeric), so only the trailing case needs
	// a dedicated check here.
	last := nsidStr[len(nsidStr)-1]
	if last == '-' || last == '.' {
		return "", &ErrInvalidPath{Reason: "nsid cannot end with separator"}
	}
	if !strings.Contains(nsidStr, ".") {
		return "", &ErrInvalidPath{Reason: "nsid must have at least two segments"}
	}

	return nsidStr, nil
}

func looksLikeURL(s string) bool {
	return strings.Contains(s, "://")
}
