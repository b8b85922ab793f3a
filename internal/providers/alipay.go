// Alipay login. Unlike the other providers, both the token exchange and the
// user-info fetch go through the single signed gateway endpoint; the tenant's
// ClientSecret holds the PKCS#8 RSA signing key. Gateway timestamps use
// Alipay's local-time format, not UTC.
package providers

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

const (
	alipayAuthorizeEndpoint = "https://openauth.alipay.com/oauth2/publicAppAuthorize.htm"
	alipayGatewayEndpoint   = "https://openapi.alipay.com/gateway.do"

	alipayTimestampFormat = "2006-01-02 15:04:05"
	alipaySuccessCode     = "10000"
)

type Alipay struct {
	authorizeURL string
	gatewayURL   string
	http         *http.Client
	now          func() time.Time
}

func NewAlipay(client *http.Client) *Alipay {
	return &Alipay{
		authorizeURL: alipayAuthorizeEndpoint,
		gatewayURL:   alipayGatewayEndpoint,
		http:         defaultClient(client),
		now:          time.Now,
	}
}

func (a *Alipay) Name() string { return "alipay" }

func (a *Alipay) AuthorizeURL(cred Credential, callbackURL, state string) (string, error) {
	u, err := url.Parse(a.authorizeURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("app_id", cred.ClientID)
	q.Set("scope", "auth_user")
	q.Set("redirect_uri", callbackURL)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// gatewayCall signs the system+biz parameter set and POSTs it to the gateway.
func (a *Alipay) gatewayCall(ctx context.Context, cred Credential, method string, biz url.Values) (Payload, int, error) {
	key, err := ParseAlipayPrivateKey(cred.ClientSecret)
	if err != nil {
		return nil, 0, err
	}
	params := url.Values{}
	params.Set("app_id", cred.ClientID)
	params.Set("method", method)
	params.Set("format", "JSON")
	params.Set("charset", "utf-8")
	params.Set("sign_type", "RSA2")
	params.Set("timestamp", a.now().Format(alipayTimestampFormat))
	params.Set("version", "1.0")
	for k := range biz {
		params.Set(k, biz.Get(k))
	}
	sig, err := AlipaySign(params, key)
	if err != nil {
		return nil, 0, err
	}
	params.Set("sign", sig)
	return postFormPayload(ctx, a.http, a.gatewayURL, params)
}

func (a *Alipay) Exchange(ctx context.Context, code string, cred Credential, callbackURL string) (Token, error) {
	biz := url.Values{}
	biz.Set("grant_type", "authorization_code")
	biz.Set("code", code)
	p, status, err := a.gatewayCall(ctx, cred, "alipay.system.oauth.token", biz)
	if err != nil {
		return Token{}, &ExchangeError{Provider: a.Name(), Code: "request_failed", Message: err.Error()}
	}
	if status != http.StatusOK || p.Has("error_response") {
		return Token{}, &ExchangeError{Provider: a.Name(), Code: firstNonEmpty(p.Str("error_response.code"), httpCode(status)), Message: firstNonEmpty(p.Str("error_response.sub_msg"), p.Str("error_response.msg"))}
	}
	resp := "alipay_system_oauth_token_response"
	if p.Str(resp+".access_token") == "" {
		return Token{}, &ExchangeError{Provider: a.Name(), Code: firstNonEmpty(p.Str(resp+".code"), "no_access_token"), Message: firstNonEmpty(p.Str(resp+".sub_msg"), "empty access_token in response")}
	}
	return Token{
		AccessToken: p.Str(resp + ".access_token"),
		OpenID:      p.Str(resp + ".user_id"),
		Raw:         p,
	}, nil
}

func (a *Alipay) UserInfo(ctx context.Context, tok Token, cred Credential) (Payload, error) {
	biz := url.Values{}
	biz.Set("auth_token", tok.AccessToken)
	p, status, err := a.gatewayCall(ctx, cred, "alipay.user.info.share", biz)
	if err != nil {
		return nil, &UserInfoError{Provider: a.Name(), Code: "request_failed", Message: err.Error()}
	}
	resp := "alipay_user_info_share_response"
	if status != http.StatusOK || p.Has("error_response") {
		return nil, &UserInfoError{Provider: a.Name(), Code: firstNonEmpty(p.Str("error_response.code"), httpCode(status)), Message: firstNonEmpty(p.Str("error_response.sub_msg"), p.Str("error_response.msg"))}
	}
	if p.Str(resp+".code") != alipaySuccessCode {
		return nil, &UserInfoError{Provider: a.Name(), Code: p.Str(resp + ".code"), Message: firstNonEmpty(p.Str(resp+".sub_msg"), p.Str(resp+".msg"))}
	}
	return p, nil
}

func (a *Alipay) Normalize(p Payload) Identity {
	resp := "alipay_user_info_share_response"
	id := Identity{
		Provider:  a.Name(),
		UserID:    p.Str(resp + ".user_id"),
		Nickname:  p.Str(resp + ".nick_name"),
		AvatarURL: p.Str(resp + ".avatar"),
		Gender:    GenderUnknown,
		Raw:       p,
	}
	switch p.Str(resp + ".gender") {
	case "M", "m":
		id.Gender = GenderMale
	case "F", "f":
		id.Gender = GenderFemale
	}
	if id.Nickname == "" {
		id.Nickname = fallbackNickname(a.Name())
	}
	return id
}
