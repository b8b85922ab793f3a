// Weibo login. Token exchange is a form POST that also validates the
// redirect_uri; the uid returned with the token keys the users/show call.
package providers

import (
	"context"
	"net/http"
	"net/url"
)

const (
	weiboAuthorizeEndpoint = "https://api.weibo.com/oauth2/authorize"
	weiboTokenEndpoint     = "https://api.weibo.com/oauth2/access_token"
	weiboUserEndpoint      = "https://api.weibo.com/2/users/show.json"
)

type Weibo struct {
	authorizeURL string
	tokenURL     string
	userURL      string
	http         *http.Client
}

func NewWeibo(client *http.Client) *Weibo {
	return &Weibo{
		authorizeURL: weiboAuthorizeEndpoint,
		tokenURL:     weiboTokenEndpoint,
		userURL:      weiboUserEndpoint,
		http:         defaultClient(client),
	}
}

func (w *Weibo) Name() string { return "weibo" }

func (w *Weibo) AuthorizeURL(cred Credential, callbackURL, state string) (string, error) {
	u, err := url.Parse(w.authorizeURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("client_id", cred.ClientID)
	q.Set("redirect_uri", callbackURL)
	q.Set("response_type", "code")
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (w *Weibo) Exchange(ctx context.Context, code string, cred Credential, callbackURL string) (Token, error) {
	form := url.Values{}
	form.Set("client_id", cred.ClientID)
	form.Set("client_secret", cred.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", callbackURL)
	p, status, err := postFormPayload(ctx, w.http, w.tokenURL, form)
	if err != nil {
		return Token{}, &ExchangeError{Provider: w.Name(), Code: "request_failed", Message: err.Error()}
	}
	if status != http.StatusOK || p.Has("error_code") {
		return Token{}, &ExchangeError{Provider: w.Name(), Code: firstNonEmpty(p.Str("error_code"), httpCode(status)), Message: firstNonEmpty(p.Str("error_description"), p.Str("error"))}
	}
	if p.Str("access_token") == "" {
		return Token{}, &ExchangeError{Provider: w.Name(), Code: "no_access_token", Message: "empty access_token in response"}
	}
	return Token{
		AccessToken: p.Str("access_token"),
		OpenID:      p.Str("uid"),
		Raw:         p,
	}, nil
}

func (w *Weibo) UserInfo(ctx context.Context, tok Token, cred Credential) (Payload, error) {
	q := url.Values{}
	q.Set("access_token", tok.AccessToken)
	q.Set("uid", tok.OpenID)
	p, status, err := getPayload(ctx, w.http, w.userURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &UserInfoError{Provider: w.Name(), Code: "request_failed", Message: err.Error()}
	}
	if status != http.StatusOK || p.Has("error_code") {
		return nil, &UserInfoError{Provider: w.Name(), Code: firstNonEmpty(p.Str("error_code"), httpCode(status)), Message: firstNonEmpty(p.Str("error"), p.Str("error_description"))}
	}
	return p, nil
}

func (w *Weibo) Normalize(p Payload) Identity {
	id := Identity{
		Provider:  w.Name(),
		UserID:    firstNonEmpty(p.Str("idstr"), p.Str("id")),
		Nickname:  p.Str("screen_name"),
		AvatarURL: firstNonEmpty(p.Str("avatar_large"), p.Str("profile_image_url")),
		Gender:    GenderUnknown,
		Raw:       p,
	}
	switch p.Str("gender") {
	case "m":
		id.Gender = GenderMale
	case "f":
		id.Gender = GenderFemale
	}
	if id.Nickname == "" {
		id.Nickname = fallbackNickname(w.Name())
	}
	return id
}
