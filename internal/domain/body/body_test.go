package body

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"strings"
	"testing"

	"github.com/xrpc-run/xrpcd/internal/domain/lexicon"
)

func TestReadLimitedRejectsByContentLength(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 5001)
	_, xerr := ReadLimited(bytes.NewReader(data), 5001, 5000)
	if xerr == nil || xerr.Kind != "PayloadTooLarge" {
		t.Fatalf("expected PayloadTooLarge via content-length precheck, got %v", xerr)
	}
}

func TestReadLimitedAcceptsAtBoundary(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 5000)
	got, xerr := ReadLimited(bytes.NewReader(data), 5000, 5000)
	if xerr != nil {
		t.Fatalf("unexpected error at exact limit: %v", xerr)
	}
	if len(got) != 5000 {
		t.Fatalf("got %d bytes", len(got))
	}
}

func TestReadLimitedRejectsStreamedOverflow(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 5001)
	_, xerr := ReadLimited(bytes.NewReader(data), -1, 5000)
	if xerr == nil || xerr.Kind != "PayloadTooLarge" {
		t.Fatalf("expected PayloadTooLarge enforced while streaming, got %v", xerr)
	}
}

func TestPresentRule(t *testing.T) {
	if Present(nil, "") {
		t.Fatal("empty body with no content-type should not be present")
	}
	if !Present(nil, "application/json") {
		t.Fatal("empty body with content-type set should be present")
	}
	if !Present([]byte("x"), "") {
		t.Fatal("non-empty body should be present")
	}
}

func TestDecodeJSONRehydratesIPLD(t *testing.T) {
	raw := []byte(`{"blob":{"$bytes":"aGVsbG8="}}`)
	decoded, xerr := Decode("application/json", raw)
	if xerr != nil {
		t.Fatalf("unexpected error: %v", xerr)
	}
	obj, ok := decoded.Value.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", decoded.Value)
	}
	b, ok := obj["blob"].(Bytes)
	if !ok {
		t.Fatalf("expected Bytes, got %T", obj["blob"])
	}
	if string(b) != "hello" {
		t.Fatalf("got %q", string(b))
	}
}

func TestDecodeText(t *testing.T) {
	decoded, xerr := Decode("text/plain", []byte("hello world"))
	if xerr != nil {
		t.Fatalf("unexpected error: %v", xerr)
	}
	if decoded.Value != "hello world" {
		t.Fatalf("got %v", decoded.Value)
	}
}

func TestDecodeOpaqueBytes(t *testing.T) {
	raw := []byte{0x00, 0x01, 0x02}
	decoded, xerr := Decode("application/octet-stream", raw)
	if xerr != nil {
		t.Fatalf("unexpected error: %v", xerr)
	}
	got, ok := decoded.Value.([]byte)
	if !ok || !bytes.Equal(got, raw) {
		t.Fatalf("got %v", decoded.Value)
	}
}

func TestMimeMatches(t *testing.T) {
	cases := []struct {
		declared lexicon.Encoding
		actual   string
		want     bool
	}{
		{"application/json", "application/json; charset=utf-8", true},
		{"application/json", "application/ld+json", true},
		{"*/*", "application/octet-stream", true},
		{"text/plain", "application/json", false},
		{"text/plain", "text/plain", true},
	}
	for _, c := range cases {
		if got := MimeMatches(c.declared, c.actual); got != c.want {
			t.Errorf("MimeMatches(%q, %q) = %v, want %v", c.declared, c.actual, got, c.want)
		}
	}
}

func TestParseContentEncodingChainDropsIdentity(t *testing.T) {
	tokens, xerr := ParseContentEncodingChain("gzip, identity, deflate, identity, identity")
	if xerr != nil {
		t.Fatalf("unexpected error: %v", xerr)
	}
	if len(tokens) != 2 || tokens[0] != "gzip" || tokens[1] != "deflate" {
		t.Fatalf("got %v", tokens)
	}
}

func TestParseContentEncodingChainRejectsUnknown(t *testing.T) {
	_, xerr := ParseContentEncodingChain("bzip2")
	if xerr == nil || xerr.Kind != "InvalidRequest" {
		t.Fatalf("expected InvalidRequest, got %v", xerr)
	}
}

// TestDecompressNestedChain mirrors testable scenario #9: a body that is
// deflate(gzip(bytes)), announced as "Content-Encoding: gzip, identity,
// deflate, identity, identity". The filtered chain is [gzip, deflate];
// Decompress must undo it right to left, deflate first then gzip.
func TestDecompressNestedChain(t *testing.T) {
	want := []byte("the quick brown fox jumps over the lazy dog")

	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	if _, err := gw.Write(want); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}

	var flBuf bytes.Buffer
	fw, err := flate.NewWriter(&flBuf, flate.DefaultCompression)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(gzBuf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := fw.Close(); err != nil {
		t.Fatal(err)
	}

	tokens, xerr := ParseContentEncodingChain("gzip, identity, deflate, identity, identity")
	if xerr != nil {
		t.Fatalf("unexpected error: %v", xerr)
	}

	got, xerr := Decompress(flBuf.Bytes(), tokens, int64(len(want)+100))
	if xerr != nil {
		t.Fatalf("unexpected error: %v", xerr)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDecompressOverflowsBlobLimit(t *testing.T) {
	payload := strings.Repeat("a", 10000)
	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	if _, err := gw.Write([]byte(payload)); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}

	tokens, xerr := ParseContentEncodingChain("gzip")
	if xerr != nil {
		t.Fatalf("unexpected error: %v", xerr)
	}

	_, xerr = Decompress(gzBuf.Bytes(), tokens, 5000)
	if xerr == nil || xerr.Kind != "PayloadTooLarge" {
		t.Fatalf("expected PayloadTooLarge after decompression, got %v", xerr)
	}
}
