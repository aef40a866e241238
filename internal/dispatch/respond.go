package dispatch

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xrpc-run/xrpcd/internal/domain/lexicon"
	"github.com/xrpc-run/xrpcd/internal/domain/xrpcerror"
)

// responseContentType appends "; charset=utf-8" to a text/* content type
// with no charset parameter of its own, per spec.md §4.8.
func responseContentType(contentType string) string {
	if contentType == "" {
		return contentType
	}
	base := contentType
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		base = contentType[:idx]
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(base)), "text/") && !strings.Contains(contentType, "charset") {
		return contentType + "; charset=utf-8"
	}
	return contentType
}

// writeXRPCError writes the standard `{"error": ..., "message": ...}`
// error body with the status from the taxonomy (spec.md §4.8 table),
// logging the underlying cause for 500s.
func writeXRPCError(w http.ResponseWriter, logger *slog.Logger, nsid string, xerr *xrpcerror.XRPCError) {
	if xerr.Kind == xrpcerror.KindInternalServerError {
		logger.Error("internal error handling xrpc request", "nsid", nsid, "error", xerr.Message, "cause", xerr.Cause)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(xerr.Status())
	body := map[string]string{"error": xerr.WireName()}
	if msg := xerr.WireMessage(); msg != "" {
		body["message"] = msg
	}
	_ = json.NewEncoder(w).Encode(body)
}

// writeOutput serializes a handler's Output per the four cases in
// spec.md §4.8 step 5.
func writeOutput(w http.ResponseWriter, logger *slog.Logger, nsid string, m *lexicon.Method, validator lexicon.Validator, validateOutput bool, out Output) {
	mergeHeaders(w.Header(), out.headers)

	switch {
	case out.void:
		w.WriteHeader(http.StatusOK)
		return

	case out.stream != nil:
		if out.contentType != "" {
			w.Header().Set("Content-Type", responseContentType(out.contentType))
		}
		w.WriteHeader(http.StatusOK)
		if closer, ok := out.stream.(io.Closer); ok {
			defer closer.Close()
		}
		io.Copy(w, out.stream)
		return

	case out.buffer != nil:
		if out.contentType != "" {
			w.Header().Set("Content-Type", responseContentType(out.contentType))
		}
		w.WriteHeader(http.StatusOK)
		w.Write(out.buffer)
		return

	case out.hasRecord:
		if validateOutput {
			if err := validator.AssertValidOutput(m, out.record); err != nil {
				writeXRPCError(w, logger, nsid, xrpcerror.Wrap(err))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(out.record); err != nil {
			logger.Error("failed to encode xrpc response", "nsid", nsid, "error", err)
		}
		return

	default:
		w.WriteHeader(http.StatusOK)
	}
}

func mergeHeaders(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
