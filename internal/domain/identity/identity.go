// Package identity provides a demo HTTP Basic-auth dispatch.Verifier
// backed by an argon2id password hash table loaded from config. Grounded
// on the teacher's internal/domain/auth/api_key.go APIKeyService shape
// (a store lookup plus a constant-time hash verification call), adapted
// from API-key/SHA-256 lookup to Basic-auth/argon2id since spec.md names
// no wire-level credential format of its own and leaves authentication
// to an external collaborator (§1) — this is the demo verifier that
// makes the repo runnable standalone.
package identity

import (
	"errors"
	"net/http"

	"github.com/alexedwards/argon2id"

	"github.com/xrpc-run/xrpcd/internal/config"
	"github.com/xrpc-run/xrpcd/internal/dispatch"
	"github.com/xrpc-run/xrpcd/internal/domain/xrpcerror"
)

// ErrUnknownUser is returned internally when no configured identity
// matches the Basic-auth username; callers never see it directly, only
// the resulting AuthRequired XRPCError.
var ErrUnknownUser = errors.New("identity: unknown user")

// account is one configured identity plus its password hash.
type account struct {
	did          string
	passwordHash string
}

// Store is an in-memory table of demo accounts, keyed by Basic-auth
// username. It is read-only after construction, matching the
// registry/rate-limit-map immutability pattern spec.md §5 requires of
// shared dispatcher state.
type Store struct {
	accounts map[string]account
}

// NewStore builds a Store from configured identities.
func NewStore(identities []config.IdentityConfig) *Store {
	accounts := make(map[string]account, len(identities))
	for _, id := range identities {
		accounts[id.Username] = account{did: id.DID, passwordHash: id.PasswordHash}
	}
	return &Store{accounts: accounts}
}

// Verifier returns a dispatch.Verifier that authenticates requests via
// HTTP Basic auth against this store. No Authorization header, an
// unknown username, and a mismatched password are all rejected with
// AuthRequired: this verifier doesn't distinguish "who are you" from
// "wrong credentials" from "you're not allowed" — credential failures
// of every shape are an authentication problem, not an authorization
// one.
func (s *Store) Verifier() dispatch.Verifier {
	return func(in *dispatch.AuthInput) (*dispatch.AuthResult, *xrpcerror.XRPCError) {
		username, password, ok := in.Req.BasicAuth()
		if !ok {
			return nil, xrpcerror.New(xrpcerror.KindAuthRequired)
		}
		acct, ok := s.accounts[username]
		if !ok {
			return nil, xrpcerror.New(xrpcerror.KindAuthRequired)
		}
		match, err := safeCompare(password, acct.passwordHash)
		if err != nil || !match {
			return nil, xrpcerror.New(xrpcerror.KindAuthRequired)
		}
		return &dispatch.AuthResult{DID: acct.did}, nil
	}
}

// safeCompare wraps argon2id.ComparePasswordAndHash with panic recovery:
// the underlying library panics on malformed hash parameters (e.g. a
// hand-edited config with t=0), and a config typo should fail auth, not
// crash the server.
func safeCompare(password, hash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = errors.New("identity: invalid password hash")
		}
	}()
	return argon2id.ComparePasswordAndHash(password, hash)
}

// RequireBasicAuthChallenge sets the WWW-Authenticate header a client
// needs to prompt for Basic credentials. Handlers that want a browser
// login prompt (rather than a bare 401 JSON body) call this before
// invoking the Verifier; the dispatcher itself never sets this header,
// since most XRPC clients are not browsers.
func RequireBasicAuthChallenge(w http.ResponseWriter, realm string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
}
