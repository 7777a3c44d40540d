// Package auth verifies the signature carried by command envelopes.
//
// The sig field is an HS256 JWT minted by the identity collaborator. A
// command is accepted when the token signature checks out against the
// shared secret, the token has not expired, and the token subject equals
// the envelope's user field. Anonymous reporters present tokens whose
// subject is their anonymous id; the same rule applies.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signature verification errors. Both map to a 401 result; the command is
// never dispatched.
var (
	// ErrBadSignature indicates a missing, malformed, expired, or
	// wrongly-signed token.
	ErrBadSignature = errors.New("invalid command signature")

	// ErrSubjectMismatch indicates a valid token presented for a different
	// identity than the envelope claims.
	ErrSubjectMismatch = errors.New("signature subject does not match command user")
)

// Verifier checks envelope signatures against a shared HS256 secret.
// An empty secret disables verification (development mode).
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier. Pass an empty secret to disable
// verification entirely.
func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return &Verifier{}
	}
	return &Verifier{secret: []byte(secret)}
}

// Enabled reports whether a secret is configured.
func (v *Verifier) Enabled() bool { return len(v.secret) > 0 }

// Verify validates sig for the given subject identity.
//
// Returns nil when verification is disabled or the token is valid for
// user; otherwise ErrBadSignature or ErrSubjectMismatch.
func (v *Verifier) Verify(sig, user string) error {
	if !v.Enabled() {
		return nil
	}
	if sig == "" {
		return ErrBadSignature
	}

	tok, err := jwt.Parse(sig, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return ErrBadSignature
	}

	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return ErrBadSignature
	}
	if sub != user {
		return ErrSubjectMismatch
	}
	return nil
}

// Sign mints a token for the given subject. Used by tests and by the
// companion client tooling; the production identity service issues its own.
func (v *Verifier) Sign(subject string) (string, error) {
	if !v.Enabled() {
		return "", errors.New("auth: no secret configured")
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject})
	return tok.SignedString(v.secret)
}
