package body

import (
	"strings"

	"github.com/xrpc-run/xrpcd/internal/domain/lexicon"
)

// baseType strips parameters (";charset=...") and lowercases the result.
func baseType(contentType string) string {
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// MimeMatches implements the MIME match rule in spec.md §4.2: exact
// match, or declared "*/*", or declared "application/json" against any
// actual type containing "json" (e.g. "application/json",
// "application/ld+json").
func MimeMatches(declared lexicon.Encoding, actualContentType string) bool {
	actual := baseType(actualContentType)
	want := strings.ToLower(string(declared))

	if want == "*/*" {
		return true
	}
	if actual == want {
		return true
	}
	if want == "application/json" && strings.Contains(actual, "json") {
		return true
	}
	return false
}

// IsTextType reports whether a content type's base type is in the
// text/* family.
func IsTextType(contentType string) bool {
	return strings.HasPrefix(baseType(contentType), "text/")
}

// IsJSONType reports whether a content type's base type names JSON.
func IsJSONType(contentType string) bool {
	return strings.Contains(baseType(contentType), "json")
}
