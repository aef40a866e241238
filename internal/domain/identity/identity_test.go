package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/argon2id"

	"github.com/xrpc-run/xrpcd/internal/config"
	"github.com/xrpc-run/xrpcd/internal/dispatch"
	"github.com/xrpc-run/xrpcd/internal/domain/xrpcerror"
)

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		t.Fatalf("argon2id.CreateHash: %v", err)
	}
	return hash
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore([]config.IdentityConfig{
		{DID: "did:plc:alice", Username: "alice", PasswordHash: mustHash(t, "correct horse")},
	})
}

func authRequest(username, password string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/xrpc/io.example.getThing", nil)
	if username != "" || password != "" {
		req.SetBasicAuth(username, password)
	}
	return req
}

func TestVerifier_NoAuthorizationHeader(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	req := httptest.NewRequest(http.MethodGet, "/xrpc/io.example.getThing", nil)

	result, xerr := store.Verifier()(&dispatch.AuthInput{Req: req})
	if result != nil {
		t.Fatalf("result = %+v, want nil", result)
	}
	if xerr == nil || xerr.Kind != xrpcerror.KindAuthRequired {
		t.Fatalf("xerr = %+v, want KindAuthRequired", xerr)
	}
}

func TestVerifier_UnknownUsername(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	req := authRequest("mallory", "whatever")

	result, xerr := store.Verifier()(&dispatch.AuthInput{Req: req})
	if result != nil {
		t.Fatalf("result = %+v, want nil", result)
	}
	if xerr == nil || xerr.Kind != xrpcerror.KindAuthRequired {
		t.Fatalf("xerr = %+v, want KindAuthRequired", xerr)
	}
}

func TestVerifier_WrongPassword(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	req := authRequest("alice", "wrong password")

	result, xerr := store.Verifier()(&dispatch.AuthInput{Req: req})
	if result != nil {
		t.Fatalf("result = %+v, want nil", result)
	}
	if xerr == nil || xerr.Kind != xrpcerror.KindAuthRequired {
		t.Fatalf("xerr = %+v, want KindAuthRequired", xerr)
	}
}

func TestVerifier_CorrectCredentials(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	req := authRequest("alice", "correct horse")

	result, xerr := store.Verifier()(&dispatch.AuthInput{Req: req})
	if xerr != nil {
		t.Fatalf("unexpected xerr: %+v", xerr)
	}
	if result == nil || result.DID != "did:plc:alice" {
		t.Fatalf("result = %+v, want DID did:plc:alice", result)
	}
}

func TestVerifier_MalformedHashDoesNotPanic(t *testing.T) {
	t.Parallel()

	store := NewStore([]config.IdentityConfig{
		{DID: "did:plc:bob", Username: "bob", PasswordHash: "not-a-real-hash"},
	})
	req := authRequest("bob", "anything")

	result, xerr := store.Verifier()(&dispatch.AuthInput{Req: req})
	if result != nil {
		t.Fatalf("result = %+v, want nil", result)
	}
	if xerr == nil || xerr.Kind != xrpcerror.KindAuthRequired {
		t.Fatalf("xerr = %+v, want KindAuthRequired", xerr)
	}
}

func TestRequireBasicAuthChallenge(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	RequireBasicAuthChallenge(w, "xrpcd")

	got := w.Header().Get("WWW-Authenticate")
	want := `Basic realm="xrpcd"`
	if got != want {
		t.Errorf("WWW-Authenticate = %q, want %q", got, want)
	}
}
