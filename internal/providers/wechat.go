// WeChat Open Platform ("website application") login. OAuth 2.0 with the
// qrconnect authorize page; errors arrive as errcode/errmsg inside a 200.
package providers

import (
	"context"
	"net/http"
	"net/url"
)

const (
	wechatAuthorizeEndpoint = "https://open.weixin.qq.com/connect/qrconnect"
	wechatTokenEndpoint     = "https://api.weixin.qq.com/sns/oauth2/access_token"
	wechatUserEndpoint      = "https://api.weixin.qq.com/sns/userinfo"
)

type WeChat struct {
	authorizeURL string
	tokenURL     string
	userURL      string
	http         *http.Client
}

func NewWeChat(client *http.Client) *WeChat {
	return &WeChat{
		authorizeURL: wechatAuthorizeEndpoint,
		tokenURL:     wechatTokenEndpoint,
		userURL:      wechatUserEndpoint,
		http:         defaultClient(client),
	}
}

func (w *WeChat) Name() string { return "wechat" }

func (w *WeChat) AuthorizeURL(cred Credential, callbackURL, state string) (string, error) {
	u, err := url.Parse(w.authorizeURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("appid", cred.ClientID)
	q.Set("redirect_uri", callbackURL)
	q.Set("response_type", "code")
	q.Set("scope", "snsapi_login")
	q.Set("state", state)
	u.RawQuery = q.Encode()
	// WeChat's docs require the fragment for the qrconnect page.
	return u.String() + "#wechat_redirect", nil
}

func (w *WeChat) Exchange(ctx context.Context, code string, cred Credential, callbackURL string) (Token, error) {
	q := url.Values{}
	q.Set("appid", cred.ClientID)
	q.Set("secret", cred.ClientSecret)
	q.Set("code", code)
	q.Set("grant_type", "authorization_code")
	p, status, err := getPayload(ctx, w.http, w.tokenURL+"?"+q.Encode(), nil)
	if err != nil {
		return Token{}, &ExchangeError{Provider: w.Name(), Code: "request_failed", Message: err.Error()}
	}
	if status != http.StatusOK {
		return Token{}, &ExchangeError{Provider: w.Name(), Code: httpCode(status), Message: p.Str("errmsg")}
	}
	if p.Int("errcode") != 0 {
		return Token{}, &ExchangeError{Provider: w.Name(), Code: p.Str("errcode"), Message: p.Str("errmsg")}
	}
	if p.Str("access_token") == "" {
		return Token{}, &ExchangeError{Provider: w.Name(), Code: "no_access_token", Message: "empty access_token in response"}
	}
	return Token{
		AccessToken: p.Str("access_token"),
		OpenID:      p.Str("openid"),
		UnionID:     p.Str("unionid"),
		Raw:         p,
	}, nil
}

func (w *WeChat) UserInfo(ctx context.Context, tok Token, cred Credential) (Payload, error) {
	q := url.Values{}
	q.Set("access_token", tok.AccessToken)
	q.Set("openid", tok.OpenID)
	p, status, err := getPayload(ctx, w.http, w.userURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &UserInfoError{Provider: w.Name(), Code: "request_failed", Message: err.Error()}
	}
	if status != http.StatusOK {
		return nil, &UserInfoError{Provider: w.Name(), Code: httpCode(status), Message: p.Str("errmsg")}
	}
	if p.Int("errcode") != 0 {
		return nil, &UserInfoError{Provider: w.Name(), Code: p.Str("errcode"), Message: p.Str("errmsg")}
	}
	return p, nil
}

func (w *WeChat) Normalize(p Payload) Identity {
	id := Identity{
		Provider:  w.Name(),
		UserID:    p.Str("openid"),
		UnionID:   p.Str("unionid"),
		Nickname:  p.Str("nickname"),
		AvatarURL: p.Str("headimgurl"),
		Gender:    GenderUnknown,
		Raw:       p,
	}
	switch p.Int("sex") {
	case 1:
		id.Gender = GenderMale
	case 2:
		id.Gender = GenderFemale
	}
	if id.Nickname == "" {
		id.Nickname = fallbackNickname(w.Name())
	}
	return id
}
