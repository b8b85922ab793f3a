// QQ Connect login. The token endpoint needs fmt=json to avoid the legacy
// urlencoded body, and the open id comes from a second call to /me, so
// Exchange makes two outbound requests.
package providers

import (
	"context"
	"net/http"
	"net/url"
)

const (
	qqAuthorizeEndpoint = "https://graph.qq.com/oauth2.0/authorize"
	qqTokenEndpoint     = "https://graph.qq.com/oauth2.0/token"
	qqOpenIDEndpoint    = "https://graph.qq.com/oauth2.0/me"
	qqUserEndpoint      = "https://graph.qq.com/user/get_user_info"
)

type QQ struct {
	authorizeURL string
	tokenURL     string
	openIDURL    string
	userURL      string
	http         *http.Client
}

func NewQQ(client *http.Client) *QQ {
	return &QQ{
		authorizeURL: qqAuthorizeEndpoint,
		tokenURL:     qqTokenEndpoint,
		openIDURL:    qqOpenIDEndpoint,
		userURL:      qqUserEndpoint,
		http:         defaultClient(client),
	}
}

func (q *QQ) Name() string { return "qq" }

func (q *QQ) AuthorizeURL(cred Credential, callbackURL, state string) (string, error) {
	u, err := url.Parse(q.authorizeURL)
	if err != nil {
		return "", err
	}
	qs := u.Query()
	qs.Set("response_type", "code")
	qs.Set("client_id", cred.ClientID)
	qs.Set("redirect_uri", callbackURL)
	qs.Set("state", state)
	qs.Set("scope", "get_user_info")
	u.RawQuery = qs.Encode()
	return u.String(), nil
}

func (q *QQ) Exchange(ctx context.Context, code string, cred Credential, callbackURL string) (Token, error) {
	qs := url.Values{}
	qs.Set("grant_type", "authorization_code")
	qs.Set("client_id", cred.ClientID)
	qs.Set("client_secret", cred.ClientSecret)
	qs.Set("code", code)
	qs.Set("redirect_uri", callbackURL)
	qs.Set("fmt", "json")
	p, status, err := getPayload(ctx, q.http, q.tokenURL+"?"+qs.Encode(), nil)
	if err != nil {
		return Token{}, &ExchangeError{Provider: q.Name(), Code: "request_failed", Message: err.Error()}
	}
	if status != http.StatusOK || p.Has("error") {
		return Token{}, &ExchangeError{Provider: q.Name(), Code: firstNonEmpty(p.Str("error"), httpCode(status)), Message: p.Str("error_description")}
	}
	accessToken := p.Str("access_token")
	if accessToken == "" {
		return Token{}, &ExchangeError{Provider: q.Name(), Code: "no_access_token", Message: "empty access_token in response"}
	}

	// Secondary open-id lookup.
	ms := url.Values{}
	ms.Set("access_token", accessToken)
	ms.Set("fmt", "json")
	me, status, err := getPayload(ctx, q.http, q.openIDURL+"?"+ms.Encode(), nil)
	if err != nil {
		return Token{}, &ExchangeError{Provider: q.Name(), Code: "openid_request_failed", Message: err.Error()}
	}
	if status != http.StatusOK || me.Str("openid") == "" {
		return Token{}, &ExchangeError{Provider: q.Name(), Code: firstNonEmpty(me.Str("error"), httpCode(status)), Message: me.Str("error_description")}
	}
	return Token{
		AccessToken: accessToken,
		OpenID:      me.Str("openid"),
		UnionID:     me.Str("unionid"),
		Raw:         p,
	}, nil
}

func (q *QQ) UserInfo(ctx context.Context, tok Token, cred Credential) (Payload, error) {
	qs := url.Values{}
	qs.Set("access_token", tok.AccessToken)
	qs.Set("oauth_consumer_key", cred.ClientID)
	qs.Set("openid", tok.OpenID)
	p, status, err := getPayload(ctx, q.http, q.userURL+"?"+qs.Encode(), nil)
	if err != nil {
		return nil, &UserInfoError{Provider: q.Name(), Code: "request_failed", Message: err.Error()}
	}
	if status != http.StatusOK || p.Int("ret") != 0 {
		return nil, &UserInfoError{Provider: q.Name(), Code: p.Str("ret"), Message: p.Str("msg")}
	}
	// get_user_info omits openid; carry it so Normalize stays pure.
	p["openid"] = tok.OpenID
	if tok.UnionID != "" {
		p["unionid"] = tok.UnionID
	}
	return p, nil
}

func (q *QQ) Normalize(p Payload) Identity {
	id := Identity{
		Provider:  q.Name(),
		UserID:    p.Str("openid"),
		UnionID:   p.Str("unionid"),
		Nickname:  p.Str("nickname"),
		AvatarURL: firstNonEmpty(p.Str("figureurl_qq_2"), p.Str("figureurl_qq_1")),
		Gender:    GenderUnknown,
		Raw:       p,
	}
	switch p.Str("gender") {
	case "男":
		id.Gender = GenderMale
	case "女":
		id.Gender = GenderFemale
	}
	if id.Nickname == "" {
		id.Nickname = fallbackNickname(q.Name())
	}
	return id
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
