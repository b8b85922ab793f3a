// DingTalk login via the v1.0 open API: JSON token exchange, then the
// contact/users/me endpoint with the token in a vendor header.
package providers

import (
	"context"
	"net/http"
	"net/url"
)

const (
	dingtalkAuthorizeEndpoint = "https://login.dingtalk.com/oauth2/auth"
	dingtalkTokenEndpoint     = "https://api.dingtalk.com/v1.0/oauth2/userAccessToken"
	dingtalkUserEndpoint      = "https://api.dingtalk.com/v1.0/contact/users/me"
)

type DingTalk struct {
	authorizeURL string
	tokenURL     string
	userURL      string
	http         *http.Client
}

func NewDingTalk(client *http.Client) *DingTalk {
	return &DingTalk{
		authorizeURL: dingtalkAuthorizeEndpoint,
		tokenURL:     dingtalkTokenEndpoint,
		userURL:      dingtalkUserEndpoint,
		http:         defaultClient(client),
	}
}

func (d *DingTalk) Name() string { return "dingtalk" }

func (d *DingTalk) AuthorizeURL(cred Credential, callbackURL, state string) (string, error) {
	u, err := url.Parse(d.authorizeURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("client_id", cred.ClientID)
	q.Set("redirect_uri", callbackURL)
	q.Set("response_type", "code")
	q.Set("scope", "openid")
	q.Set("prompt", "consent")
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d *DingTalk) Exchange(ctx context.Context, code string, cred Credential, callbackURL string) (Token, error) {
	body := map[string]string{
		"clientId":     cred.ClientID,
		"clientSecret": cred.ClientSecret,
		"code":         code,
		"grantType":    "authorization_code",
	}
	p, status, err := postJSONPayload(ctx, d.http, d.tokenURL, body)
	if err != nil {
		return Token{}, &ExchangeError{Provider: d.Name(), Code: "request_failed", Message: err.Error()}
	}
	if status != http.StatusOK {
		return Token{}, &ExchangeError{Provider: d.Name(), Code: firstNonEmpty(p.Str("code"), httpCode(status)), Message: p.Str("message")}
	}
	if p.Str("accessToken") == "" {
		return Token{}, &ExchangeError{Provider: d.Name(), Code: "no_access_token", Message: "empty accessToken in response"}
	}
	return Token{AccessToken: p.Str("accessToken"), Raw: p}, nil
}

func (d *DingTalk) UserInfo(ctx context.Context, tok Token, cred Credential) (Payload, error) {
	headers := map[string]string{"x-acs-dingtalk-access-token": tok.AccessToken}
	p, status, err := getPayload(ctx, d.http, d.userURL, headers)
	if err != nil {
		return nil, &UserInfoError{Provider: d.Name(), Code: "request_failed", Message: err.Error()}
	}
	if status != http.StatusOK {
		return nil, &UserInfoError{Provider: d.Name(), Code: firstNonEmpty(p.Str("code"), httpCode(status)), Message: p.Str("message")}
	}
	return p, nil
}

func (d *DingTalk) Normalize(p Payload) Identity {
	id := Identity{
		Provider:  d.Name(),
		UserID:    p.Str("openId"),
		UnionID:   p.Str("unionId"),
		Nickname:  p.Str("nick"),
		AvatarURL: p.Str("avatarUrl"),
		Gender:    GenderUnknown, // DingTalk does not expose gender here
		Raw:       p,
	}
	if id.Nickname == "" {
		id.Nickname = fallbackNickname(d.Name())
	}
	return id
}
