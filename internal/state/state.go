// Package state encodes the login context carried across the provider
// redirect. Tokens are HMAC-signed so no field is trusted before the
// signature checks out; a token older than the TTL is rejected. The nonce is
// entropy only — replay of a still-valid token is not detected here.
package state

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalid covers every decode failure: bad signature, unparsable payload,
// missing fields, expiry. Callers log the wrapped cause but surface only this.
var ErrInvalid = errors.New("invalid state token")

// Login is the context round-tripped through the provider redirect.
type Login struct {
	AppID        string
	Provider     string
	RedirectPath string
	Nonce        string
	IssuedAt     time.Time
}

type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec builds a codec. An empty secret gets an ephemeral random key, so
// restarts invalidate in-flight logins (dev convenience, warned at startup).
func NewCodec(secret string, ttl time.Duration) *Codec {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	return &Codec{secret: key, ttl: ttl, now: time.Now}
}

// NewNonce returns a fresh hex-encoded 32-byte random nonce.
func NewNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Encode serializes and signs the login context.
func (c *Codec) Encode(l Login) (string, error) {
	if l.AppID == "" || l.Provider == "" || l.Nonce == "" {
		return "", fmt.Errorf("state: incomplete login context")
	}
	now := c.now().UTC()
	builder := jwt.NewBuilder().
		Claim("app_id", l.AppID).
		Claim("provider", l.Provider).
		Claim("nonce", l.Nonce).
		IssuedAt(now).
		Expiration(now.Add(c.ttl))
	if l.RedirectPath != "" {
		builder = builder.Claim("redir", l.RedirectPath)
	}
	tok, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("state build: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, c.secret))
	if err != nil {
		return "", fmt.Errorf("state sign: %w", err)
	}
	return string(signed), nil
}

// Decode verifies the signature, then field presence, then age. Expiry is
// checked against the embedded issue time rather than jwx's validator so the
// TTL stays the single source of truth.
func (c *Codec) Decode(raw string) (Login, error) {
	tok, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256, c.secret), jwt.WithValidate(false))
	if err != nil {
		return Login{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	l := Login{
		AppID:        claimString(tok, "app_id"),
		Provider:     claimString(tok, "provider"),
		RedirectPath: claimString(tok, "redir"),
		Nonce:        claimString(tok, "nonce"),
		IssuedAt:     tok.IssuedAt(),
	}
	if l.AppID == "" || l.Provider == "" || l.Nonce == "" || l.IssuedAt.IsZero() {
		return Login{}, fmt.Errorf("%w: missing fields", ErrInvalid)
	}
	if c.now().UTC().Sub(l.IssuedAt) > c.ttl {
		return Login{}, fmt.Errorf("%w: expired", ErrInvalid)
	}
	return l, nil
}

func claimString(tok jwt.Token, name string) string {
	if v, ok := tok.Get(name); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
