// Package gateway sequences the login/callback flow: tenant resolution,
// admission, provider dispatch, state round-trip, identity resolution and the
// final application redirect.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"authgate/internal/configcache"
	"authgate/internal/identity"
	"authgate/internal/providers"
	"authgate/internal/state"
	"authgate/internal/usage"
	"authgate/pkg/config"
	"authgate/pkg/plans"
	"authgate/pkg/tenants"
)

// Stable machine-readable error codes of the external contract.
const (
	CodeMissingParameters    = "MISSING_PARAMETERS"
	CodeUnknownTenant        = "UNKNOWN_TENANT"
	CodeProviderNotSupported = "PROVIDER_NOT_SUPPORTED"
	CodeInvalidState         = "INVALID_STATE"
	CodeLimitExceeded        = "LIMIT_EXCEEDED"
	CodeExchangeFailed       = "EXCHANGE_FAILED"
	CodeUserInfoFailed       = "USERINFO_FAILED"
	CodeIdentityFailed       = "IDENTITY_FAILED"
	CodeInternalError        = "INTERNAL_ERROR"
)

// Failure is a terminal error transition. AppRedirect is set when the
// tenant's application base URL was resolved before the failure, so the
// handler can prefer a redirect over a bare JSON body.
type Failure struct {
	Code        string
	Description string
	Status      int
	AppRedirect string
	Decision    *usage.Decision // admission denials only
}

func (f *Failure) Error() string { return f.Code + ": " + f.Description }

// Redirect is the successful outcome of either leg.
type Redirect struct {
	URL string
}

type LoginRequest struct {
	AppID        string
	Provider     string
	RedirectPath string
}

type CallbackRequest struct {
	Code  string
	State string
}

type Service struct {
	cfg        config.Config
	registry   *providers.Registry
	codec      *state.Codec
	cache      configcache.Cache
	store      tenants.Store
	ledger     *usage.Ledger
	identities identity.Store
	table      plans.Table
	log        *zap.SugaredLogger
	metrics    *Metrics
}

func NewService(cfg config.Config, registry *providers.Registry, codec *state.Codec, cache configcache.Cache,
	store tenants.Store, ledger *usage.Ledger, identities identity.Store, table plans.Table,
	log *zap.SugaredLogger, metrics *Metrics) *Service {
	return &Service{
		cfg: cfg, registry: registry, codec: codec, cache: cache,
		store: store, ledger: ledger, identities: identities, table: table,
		log: log, metrics: metrics,
	}
}

// CallbackURL is the provider-facing redirect target. Both legs must build
// the identical URL because providers validate it against the one registered
// at authorization time.
func (s *Service) CallbackURL() string {
	return strings.TrimRight(s.cfg.BasePublicURL, "/") + "/auth/callback"
}

// resolveApp is the read-through over the config cache; a cache failure
// degrades to a store read.
func (s *Service) resolveApp(ctx context.Context, appID string) (tenants.App, *Failure) {
	if app, ok := s.cache.Get(ctx, appID); ok {
		return *app, nil
	}
	app, err := s.store.GetApp(ctx, appID)
	if err != nil {
		if errors.Is(err, tenants.ErrAppNotFound) {
			return tenants.App{}, &Failure{Code: CodeUnknownTenant, Description: "unknown app_id", Status: http.StatusNotFound}
		}
		s.log.Errorw("app lookup", "app", appID, "err", err)
		return tenants.App{}, &Failure{Code: CodeInternalError, Description: "configuration lookup failed", Status: http.StatusInternalServerError}
	}
	s.cache.Put(ctx, app, s.cfg.TenantCacheTTL)
	return app, nil
}

// Login runs the first leg: Idle → LoginRequested → AdmissionChecked →
// ProviderRedirect. Admission runs strictly before the provider redirect.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Redirect, *Failure) {
	if req.AppID == "" || req.Provider == "" {
		return nil, &Failure{Code: CodeMissingParameters, Description: "app_id and provider are required", Status: http.StatusBadRequest}
	}
	app, fail := s.resolveApp(ctx, req.AppID)
	if fail != nil {
		return nil, fail
	}
	adapter, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, s.fail(app, req.RedirectPath, CodeProviderNotSupported, "provider not supported or not enabled", http.StatusBadRequest)
	}
	cred, ok := app.Credential(req.Provider)
	if !ok {
		return nil, s.fail(app, req.RedirectPath, CodeProviderNotSupported, "provider not supported or not enabled", http.StatusBadRequest)
	}

	decision, err := s.ledger.CheckAdmission(ctx, app.OwnerID)
	if err != nil {
		s.log.Errorw("admission check", "owner", app.OwnerID, "err", err)
		return nil, s.fail(app, req.RedirectPath, CodeInternalError, "usage check failed", http.StatusInternalServerError)
	}
	if !decision.Allowed {
		s.metrics.Denials.WithLabelValues(decision.Reason).Inc()
		s.metrics.Logins.WithLabelValues(req.Provider, "denied").Inc()
		return nil, &Failure{
			Code:        CodeLimitExceeded,
			Description: decision.Reason,
			Status:      http.StatusTooManyRequests,
			Decision:    &decision,
		}
	}

	nonce, err := state.NewNonce()
	if err != nil {
		return nil, s.fail(app, req.RedirectPath, CodeInternalError, "nonce generation failed", http.StatusInternalServerError)
	}
	token, err := s.codec.Encode(state.Login{
		AppID:        app.ID,
		Provider:     req.Provider,
		RedirectPath: req.RedirectPath,
		Nonce:        nonce,
	})
	if err != nil {
		s.log.Errorw("state encode", "app", app.ID, "err", err)
		return nil, s.fail(app, req.RedirectPath, CodeInternalError, "state encoding failed", http.StatusInternalServerError)
	}
	authURL, err := adapter.AuthorizeURL(providerCred(cred), s.CallbackURL(), token)
	if err != nil {
		s.log.Errorw("authorize url", "app", app.ID, "provider", req.Provider, "err", err)
		return nil, s.fail(app, req.RedirectPath, CodeInternalError, "authorization URL construction failed", http.StatusInternalServerError)
	}
	s.metrics.Logins.WithLabelValues(req.Provider, "redirected").Inc()
	return &Redirect{URL: authURL}, nil
}

// Callback runs the second leg: CallbackReceived → StateValidated →
// CodeExchanged → IdentityResolved → UsageRecorded → AppRedirect. The state
// is validated before any provider call; usage moves only after identity
// resolution succeeds.
func (s *Service) Callback(ctx context.Context, req CallbackRequest) (*Redirect, *Failure) {
	if req.Code == "" || req.State == "" {
		return nil, &Failure{Code: CodeMissingParameters, Description: "code and state are required", Status: http.StatusBadRequest}
	}
	login, err := s.codec.Decode(req.State)
	if err != nil {
		s.log.Infow("state rejected", "err", err)
		return nil, &Failure{Code: CodeInvalidState, Description: "invalid or expired state", Status: http.StatusBadRequest}
	}
	app, fail := s.resolveApp(ctx, login.AppID)
	if fail != nil {
		return nil, fail
	}
	adapter, err := s.registry.Get(login.Provider)
	if err != nil {
		return nil, s.fail(app, login.RedirectPath, CodeProviderNotSupported, "provider not supported or not enabled", http.StatusBadRequest)
	}
	cred, ok := app.Credential(login.Provider)
	if !ok {
		return nil, s.fail(app, login.RedirectPath, CodeProviderNotSupported, "provider not supported or not enabled", http.StatusBadRequest)
	}

	tok, err := adapter.Exchange(ctx, req.Code, providerCred(cred), s.CallbackURL())
	if err != nil {
		s.log.Warnw("code exchange", "app", app.ID, "provider", login.Provider, "err", err)
		s.metrics.Logins.WithLabelValues(login.Provider, "exchange_failed").Inc()
		return nil, s.fail(app, login.RedirectPath, CodeExchangeFailed, "provider code exchange failed", http.StatusBadGateway)
	}
	payload, err := adapter.UserInfo(ctx, tok, providerCred(cred))
	if err != nil {
		s.log.Warnw("userinfo fetch", "app", app.ID, "provider", login.Provider, "err", err)
		s.metrics.Logins.WithLabelValues(login.Provider, "userinfo_failed").Inc()
		return nil, s.fail(app, login.RedirectPath, CodeUserInfoFailed, "provider user info fetch failed", http.StatusBadGateway)
	}
	ident := adapter.Normalize(payload)

	rec, err := s.identities.FindOrCreate(ctx, ident)
	if err != nil {
		s.log.Errorw("identity resolve", "app", app.ID, "provider", login.Provider, "err", err)
		s.metrics.Logins.WithLabelValues(login.Provider, "identity_failed").Inc()
		return nil, s.fail(app, login.RedirectPath, CodeIdentityFailed, "identity resolution failed", http.StatusInternalServerError)
	}

	// Counter write is best-effort once the login itself has succeeded.
	if err := s.ledger.RecordSuccess(ctx, app.OwnerID); err != nil {
		s.log.Warnw("usage record", "owner", app.OwnerID, "err", err)
	}
	s.metrics.Logins.WithLabelValues(login.Provider, "completed").Inc()

	target := appRedirect(app, login.RedirectPath)
	q := url.Values{}
	q.Set("provider", ident.Provider)
	q.Set("user_id", rec.ID)
	q.Set("openid", ident.UserID)
	q.Set("nickname", ident.Nickname)
	if ident.AvatarURL != "" {
		q.Set("avatar", ident.AvatarURL)
	}
	return &Redirect{URL: withQuery(target, q)}, nil
}

// Stats is the /usage/stats view: plan, limits, current windows, remaining.
func (s *Service) Stats(ctx context.Context, ownerID string) (StatsResponse, *Failure) {
	if ownerID == "" {
		return StatsResponse{}, &Failure{Code: CodeMissingParameters, Description: "developer_id is required", Status: http.StatusBadRequest}
	}
	tier := s.ledger.Plan(ctx, ownerID)
	limits := s.table.For(tier)
	u, err := s.ledger.Usage(ctx, ownerID)
	if err != nil {
		s.log.Errorw("usage read", "owner", ownerID, "err", err)
		return StatsResponse{}, &Failure{Code: CodeInternalError, Description: "usage lookup failed", Status: http.StatusInternalServerError}
	}
	return StatsResponse{
		DeveloperID: ownerID,
		Plan:        string(tier),
		Limits:      StatsLimits{Daily: limits.Daily, Monthly: limits.Monthly, Apps: limits.MaxApps},
		Usage:       u,
		Remaining:   remaining(limits, u),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}, nil
}

type StatsLimits struct {
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
	Apps    int   `json:"apps"`
}

type StatsRemaining struct {
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
}

type StatsResponse struct {
	DeveloperID string         `json:"developer_id"`
	Plan        string         `json:"plan"`
	Limits      StatsLimits    `json:"limits"`
	Usage       usage.Usage    `json:"usage"`
	Remaining   StatsRemaining `json:"remaining"`
	Timestamp   string         `json:"timestamp"`
}

func remaining(limits plans.Limits, u usage.Usage) StatsRemaining {
	r := StatsRemaining{Daily: plans.Unlimited, Monthly: plans.Unlimited}
	if limits.Daily != plans.Unlimited {
		if r.Daily = limits.Daily - u.Daily; r.Daily < 0 {
			r.Daily = 0
		}
	}
	if limits.Monthly != plans.Unlimited {
		if r.Monthly = limits.Monthly - u.Monthly; r.Monthly < 0 {
			r.Monthly = 0
		}
	}
	return r
}

// fail attaches the app redirect target when the base URL is known.
func (s *Service) fail(app tenants.App, redirectPath, code, desc string, status int) *Failure {
	f := &Failure{Code: code, Description: desc, Status: status}
	if app.RedirectBase != "" {
		f.AppRedirect = appRedirect(app, redirectPath)
	}
	return f
}

func appRedirect(app tenants.App, path string) string {
	base := strings.TrimRight(app.RedirectBase, "/")
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func withQuery(target string, q url.Values) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + q.Encode()
}

func providerCred(c tenants.ProviderCredential) providers.Credential {
	return providers.Credential{ClientID: c.ClientID, ClientSecret: c.ClientSecret, Extra: c.Extra}
}
