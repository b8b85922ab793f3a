// Package providers implements the identity-provider adapters behind the
// gateway's common login/callback contract. Each adapter owns its provider's
// authorization-URL construction, code exchange, user-info retrieval and
// identity normalization; the orchestrator only ever sees this interface.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// ErrNotSupported is returned by the registry for unknown provider names.
var ErrNotSupported = errors.New("provider not supported")

// Credential is one tenant's configuration for one provider.
type Credential struct {
	ClientID     string
	ClientSecret string // secret or signing key, provider-dependent
	Extra        map[string]string
}

// Token is the result of a code exchange. OpenID/UnionID are populated where
// the provider returns them alongside the token (WeChat, QQ, Douyin, Weibo).
type Token struct {
	AccessToken string
	OpenID      string
	UnionID     string
	Raw         Payload
}

// Gender is the normalized gender value.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// Identity is the canonical user shape derived from a provider's raw
// user-info payload. Normalization is total: missing provider fields get
// fallbacks, never errors.
type Identity struct {
	Provider  string
	UserID    string // provider-scoped user id
	UnionID   string // cross-app federation id, when the provider has one
	Nickname  string
	AvatarURL string
	Gender    Gender
	Raw       Payload
}

// Key returns the external identity key: (provider, union id) when the
// provider federates identities, else (provider, user id).
func (id Identity) Key() (provider, subject string) {
	if id.UnionID != "" {
		return id.Provider, id.UnionID
	}
	return id.Provider, id.UserID
}

// Adapter is the capability set every provider implements.
type Adapter interface {
	Name() string

	// AuthorizeURL builds the provider authorization redirect. Pure string
	// construction; no network.
	AuthorizeURL(cred Credential, callbackURL, state string) (string, error)

	// Exchange trades an authorization code for a token. One outbound call,
	// or two where the provider requires a secondary open-id lookup (QQ).
	Exchange(ctx context.Context, code string, cred Credential, callbackURL string) (Token, error)

	// UserInfo fetches the raw user payload for an exchanged token.
	UserInfo(ctx context.Context, tok Token, cred Credential) (Payload, error)

	// Normalize maps a raw payload to the canonical identity. Pure and total.
	Normalize(p Payload) Identity
}

// ExchangeError is a failed code exchange: non-success HTTP status or a
// provider-embedded error code. Terminal for the attempt; never retried here.
type ExchangeError struct {
	Provider string
	Code     string
	Message  string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s exchange failed: %s %s", e.Provider, e.Code, e.Message)
}

// UserInfoError is a failed user-info fetch, same failure policy as Exchange.
type UserInfoError struct {
	Provider string
	Code     string
	Message  string
}

func (e *UserInfoError) Error() string {
	return fmt.Sprintf("%s userinfo failed: %s %s", e.Provider, e.Code, e.Message)
}

// Registry maps provider names to adapters. It is built once at startup and
// immutable afterwards; unknown names fail explicitly, never no-op.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

func (r *Registry) Get(name string) (Adapter, error) {
	if a, ok := r.adapters[name]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotSupported, name)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All builds the full adapter set with one shared client.
func All(client *http.Client) []Adapter {
	return []Adapter{
		NewWeChat(client),
		NewQQ(client),
		NewDouyin(client),
		NewDingTalk(client),
		NewWeibo(client),
		NewAlipay(client),
	}
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func fallbackNickname(provider string) string { return provider + " user" }
