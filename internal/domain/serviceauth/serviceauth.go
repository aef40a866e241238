// Package serviceauth implements service-to-service JWTs: creation with
// audience and lexicon-method binding, and verification with key-rotation
// retry, per spec.md §4.4. The cryptographic primitives themselves are an
// external collaborator (the Keypair/VerifyingKey interfaces); this
// package wires golang-jwt/jwt/v5 for the envelope (header/claims
// encoding, compact serialization) and layers the lxm-binding,
// subcoded-error, and key-rotation-retry semantics §4.4 requires on top.
package serviceauth

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xrpc-run/xrpcd/internal/domain/xrpcerror"
)

// Keypair signs service-auth payloads. Alg identifies the JWS algorithm
// named in the header (e.g. "ES256K", "ES256").
type Keypair interface {
	Alg() string
	Sign(signingInput []byte) ([]byte, error)
}

// VerifyingKey checks a signature produced by the corresponding Keypair.
type VerifyingKey interface {
	Alg() string
	Verify(signingInput, sig []byte) error
}

// KeyFetcher resolves the verifying key for a service DID, per §4.4 step
// 7: "Fetch signing key via getSigningKey(iss, forceRefresh=false)". The
// caller's implementation is expected to cache and only hit the network
// when forceRefresh is true.
type KeyFetcher func(iss string, forceRefresh bool) (VerifyingKey, error)

const defaultTTL = 60 * time.Second

// signingMethod adapts a Keypair/VerifyingKey pair into jwt.SigningMethod
// so jwt.Token can drive the compact serialization while the actual
// cryptographic operation stays delegated to the external collaborator.
// It is never registered globally: each call site builds one bound to the
// specific key in play, so there is no ambiguity resolving "alg" strings
// for algorithms the library doesn't itself implement (e.g. ES256K).
type signingMethod struct {
	alg    string
	signer Keypair
	verify VerifyingKey
}

func (m *signingMethod) Alg() string { return m.alg }

func (m *signingMethod) Sign(signingString string, key interface{}) ([]byte, error) {
	return m.signer.Sign([]byte(signingString))
}

func (m *signingMethod) Verify(signingString string, sig []byte, key interface{}) error {
	return m.verify.Verify([]byte(signingString), sig)
}

// CreateOptions configures Create. Lxm == nil omits the claim; pass a
// pointer to an empty string only if that is genuinely the intended
// value (matches §4.4's "omitted only when the caller explicitly passes
// null" rule, inverted for Go's nil-by-default idiom).
type CreateOptions struct {
	Iss string
	Aud string
	Lxm *string
	TTL time.Duration // defaults to 60s when zero
}

// Create builds and signs a service JWT, returning the compact
// "header.payload.sig" string.
func Create(signer Keypair, opts CreateOptions) (string, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := time.Now()
	jti, err := randomJTI()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"iss": opts.Iss,
		"aud": opts.Aud,
		"exp": now.Add(ttl).Unix(),
		"jti": jti,
	}
	if opts.Lxm != nil {
		claims["lxm"] = *opts.Lxm
	}

	method := &signingMethod{alg: signer.Alg(), signer: signer}
	token := jwt.NewWithClaims(method, claims)
	return token.SignedString(signer)
}

func randomJTI() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// rejectedTyp holds the typ values §4.4 step 2 refuses outright: these
// belong to other token families (OAuth access tokens, refresh tokens,
// DPoP proofs) and must never be accepted as service-auth JWTs.
var rejectedTyp = map[string]bool{
	"at+jwt":      true,
	"refresh+jwt": true,
	"dpop+jwt":    true,
}

// VerifyOptions configures Verify. OwnDID and Lxm are optional expected
// values; a nil/empty field skips the corresponding check, per §4.4.
type VerifyOptions struct {
	OwnDID string
	Lxm    string
}

// Claims is the subset of verified payload fields handlers need.
type Claims struct {
	Iss string
	Aud string
	Lxm string
	Jti string
}

// authErr builds the single AuthRequired kind with a distinguishing wire
// name, per §4.4's "All failures are a single error kind... with
// distinguishing subcodes."
func authErr(subcode, message string) *xrpcerror.XRPCError {
	return &xrpcerror.XRPCError{Kind: xrpcerror.KindAuthRequired, Name: subcode, Message: message}
}

// Verify implements the §4.4 verification algorithm. All failures are
// reported as a single xrpcerror.KindAuthRequired with a distinguishing
// Name subcode (BadJwt, BadJwtType, JwtExpired, BadJwtAudience,
// BadJwtLexiconMethod, BadJwtSignature).
func Verify(token string, fetchKey KeyFetcher, opts VerifyOptions) (*Claims, *xrpcerror.XRPCError) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, authErr("BadJwt", "malformed jwt")
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, claims)
	if err != nil {
		return nil, authErr("BadJwt", "malformed jwt: "+err.Error())
	}

	typ, _ := parsed.Header["typ"].(string)
	if rejectedTyp[typ] {
		return nil, authErr("BadJwtType", "unsupported jwt typ "+typ)
	}

	iss, _ := claims["iss"].(string)
	aud, _ := claims["aud"].(string)
	if iss == "" || aud == "" {
		return nil, authErr("BadJwt", "missing required claims")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, authErr("BadJwt", "missing required claims")
	}

	var lxm *string
	if raw, ok := claims["lxm"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, authErr("BadJwt", "lxm claim must be a string")
		}
		lxm = &s
	}

	if time.Now().After(exp.Time) {
		return nil, authErr("JwtExpired", "jwt expired")
	}

	if opts.OwnDID != "" && aud != opts.OwnDID {
		return nil, authErr("BadJwtAudience", "jwt audience does not match service")
	}

	if opts.Lxm != "" {
		if lxm == nil {
			return nil, authErr("BadJwtLexiconMethod", "missing jwt lxm, required "+opts.Lxm)
		}
		if *lxm != opts.Lxm {
			return nil, authErr("BadJwtLexiconMethod", "bad jwt lxm "+*lxm+", required "+opts.Lxm)
		}
	}

	sig, err := jwt.NewParser().DecodeSegment(parts[2])
	if err != nil {
		return nil, authErr("BadJwtSignature", "malformed jwt signature")
	}
	signingInput := []byte(parts[0] + "." + parts[1])

	if verifySignature(fetchKey, iss, signingInput, sig) {
		jti, _ := claims["jti"].(string)
		result := &Claims{Iss: iss, Aud: aud, Jti: jti}
		if lxm != nil {
			result.Lxm = *lxm
		}
		return result, nil
	}
	return nil, authErr("BadJwtSignature", "jwt signature does not match")
}

// verifySignature implements §4.4 step 7: fetch the cached signing key
// first; only on mismatch does it force a refresh and retry once, and
// only the retry's verdict counts if the refreshed key actually differs.
func verifySignature(fetchKey KeyFetcher, iss string, signingInput, sig []byte) bool {
	key, err := fetchKey(iss, false)
	if err == nil && tryVerify(key, signingInput, sig) {
		return true
	}

	refreshed, err := fetchKey(iss, true)
	if err != nil {
		return false
	}
	if key != nil && sameKey(key, refreshed) {
		return false
	}
	return tryVerify(refreshed, signingInput, sig)
}

func tryVerify(key VerifyingKey, signingInput, sig []byte) (ok bool) {
	if key == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return key.Verify(signingInput, sig) == nil
}

func sameKey(a, b VerifyingKey) bool {
	return a.Alg() == b.Alg() && keyIdentity(a) == keyIdentity(b)
}

// keyIdentity is a best-effort identity check for VerifyingKey values
// that don't expose their raw material; callers whose key types support
// comparison should embed a stable identifier to make this meaningful.
func keyIdentity(k VerifyingKey) string {
	if ident, ok := k.(interface{ KeyID() string }); ok {
		return ident.KeyID()
	}
	return k.Alg()
}
