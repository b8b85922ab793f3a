// Douyin Open Platform login. Every response nests the business payload
// under "data"; error_code 0 means success.
package providers

import (
	"context"
	"net/http"
	"net/url"
)

const (
	douyinAuthorizeEndpoint = "https://open.douyin.com/platform/oauth/connect"
	douyinTokenEndpoint     = "https://open.douyin.com/oauth/access_token/"
	douyinUserEndpoint      = "https://open.douyin.com/oauth/userinfo/"
)

type Douyin struct {
	authorizeURL string
	tokenURL     string
	userURL      string
	http         *http.Client
}

func NewDouyin(client *http.Client) *Douyin {
	return &Douyin{
		authorizeURL: douyinAuthorizeEndpoint,
		tokenURL:     douyinTokenEndpoint,
		userURL:      douyinUserEndpoint,
		http:         defaultClient(client),
	}
}

func (d *Douyin) Name() string { return "douyin" }

func (d *Douyin) AuthorizeURL(cred Credential, callbackURL, state string) (string, error) {
	u, err := url.Parse(d.authorizeURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("client_key", cred.ClientID)
	q.Set("response_type", "code")
	q.Set("scope", "user_info")
	q.Set("redirect_uri", callbackURL)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d *Douyin) Exchange(ctx context.Context, code string, cred Credential, callbackURL string) (Token, error) {
	q := url.Values{}
	q.Set("client_key", cred.ClientID)
	q.Set("client_secret", cred.ClientSecret)
	q.Set("code", code)
	q.Set("grant_type", "authorization_code")
	p, status, err := getPayload(ctx, d.http, d.tokenURL+"?"+q.Encode(), nil)
	if err != nil {
		return Token{}, &ExchangeError{Provider: d.Name(), Code: "request_failed", Message: err.Error()}
	}
	if status != http.StatusOK || p.Int("data.error_code") != 0 {
		return Token{}, &ExchangeError{Provider: d.Name(), Code: firstNonEmpty(p.Str("data.error_code"), httpCode(status)), Message: p.Str("data.description")}
	}
	if p.Str("data.access_token") == "" {
		return Token{}, &ExchangeError{Provider: d.Name(), Code: "no_access_token", Message: "empty access_token in response"}
	}
	return Token{
		AccessToken: p.Str("data.access_token"),
		OpenID:      p.Str("data.open_id"),
		UnionID:     p.Str("data.union_id"),
		Raw:         p,
	}, nil
}

func (d *Douyin) UserInfo(ctx context.Context, tok Token, cred Credential) (Payload, error) {
	q := url.Values{}
	q.Set("access_token", tok.AccessToken)
	q.Set("open_id", tok.OpenID)
	p, status, err := getPayload(ctx, d.http, d.userURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &UserInfoError{Provider: d.Name(), Code: "request_failed", Message: err.Error()}
	}
	if status != http.StatusOK || p.Int("data.error_code") != 0 {
		return nil, &UserInfoError{Provider: d.Name(), Code: firstNonEmpty(p.Str("data.error_code"), httpCode(status)), Message: p.Str("data.description")}
	}
	return p, nil
}

func (d *Douyin) Normalize(p Payload) Identity {
	id := Identity{
		Provider:  d.Name(),
		UserID:    p.Str("data.open_id"),
		UnionID:   p.Str("data.union_id"),
		Nickname:  p.Str("data.nickname"),
		AvatarURL: p.Str("data.avatar"),
		Gender:    GenderUnknown,
		Raw:       p,
	}
	// Douyin reports gender 0 unknown / 1 male / 2 female.
	switch p.Int("data.gender") {
	case 1:
		id.Gender = GenderMale
	case 2:
		id.Gender = GenderFemale
	}
	if id.Nickname == "" {
		id.Nickname = fallbackNickname(d.Name())
	}
	return id
}
