package body

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/xrpc-run/xrpcd/internal/domain/xrpcerror"
)

// ParseContentEncodingChain splits a Content-Encoding header value on
// commas, trims whitespace, and drops "identity" tokens. Any remaining
// token outside {gzip, deflate, br} is an InvalidRequest per spec.md
// §4.2.
func ParseContentEncodingChain(header string) ([]string, *xrpcerror.XRPCError) {
	if header == "" {
		return nil, nil
	}
	var tokens []string
	for _, part := range strings.Split(header, ",") {
		tok := strings.ToLower(strings.TrimSpace(part))
		if tok == "" || tok == "identity" {
			continue
		}
		switch tok {
		case "gzip", "deflate", "br":
			tokens = append(tokens, tok)
		default:
			return nil, xrpcerror.InvalidRequest("unsupported content-encoding")
		}
	}
	return tokens, nil
}

// Decompress undoes a content-encoding chain. Per spec.md §4.2,
// decompression is applied right to left (the encoding listed first was
// applied first, so it is innermost and removed last): tokens are walked from the end of the slice
// back to the start. After each stage the running size is checked
// against blobLimit; overflow yields PayloadTooLarge.
func Decompress(data []byte, tokens []string, blobLimit int64) ([]byte, *xrpcerror.XRPCError) {
	cur := data
	for i := len(tokens) - 1; i >= 0; i-- {
		decoded, err := decompressOne(cur, tokens[i])
		if err != nil {
			return nil, xrpcerror.InvalidRequest("failed to decompress content-encoding %q: %v", tokens[i], err)
		}
		if int64(len(decoded)) > blobLimit {
			return nil, xrpcerror.PayloadTooLarge("request entity too large")
		}
		cur = decoded
	}
	return cur, nil
}

func decompressOne(data []byte, token string) ([]byte, error) {
	switch token {
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "deflate":
		r := flate.NewReader(bytes.NewReader(data))
		defer r.Close()
		return io.ReadAll(r)
	case "br":
		r := brotli.NewReader(bytes.NewReader(data))
		return io.ReadAll(r)
	default:
		return data, nil
	}
}
