package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
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

type fakeAdapter struct {
	name         string
	authorizeN   int
	exchangeN    int
	userInfoN    int
	exchangeErr  error
	userInfoErr  error
	seenCallback string
	identity     providers.Identity
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) AuthorizeURL(cred providers.Credential, callbackURL, st string) (string, error) {
	f.authorizeN++
	f.seenCallback = callbackURL
	q := url.Values{}
	q.Set("client_id", cred.ClientID)
	q.Set("redirect_uri", callbackURL)
	q.Set("state", st)
	return "https://provider.example/authorize?" + q.Encode(), nil
}

func (f *fakeAdapter) Exchange(ctx context.Context, code string, cred providers.Credential, callbackURL string) (providers.Token, error) {
	f.exchangeN++
	f.seenCallback = callbackURL
	if f.exchangeErr != nil {
		return providers.Token{}, f.exchangeErr
	}
	return providers.Token{AccessToken: "at-" + code, OpenID: "open-1"}, nil
}

func (f *fakeAdapter) UserInfo(ctx context.Context, tok providers.Token, cred providers.Credential) (providers.Payload, error) {
	f.userInfoN++
	if f.userInfoErr != nil {
		return nil, f.userInfoErr
	}
	return providers.Payload{"openid": tok.OpenID}, nil
}

func (f *fakeAdapter) Normalize(p providers.Payload) providers.Identity {
	id := f.identity
	if id.UserID == "" {
		id = providers.Identity{Provider: f.name, UserID: "open-1", Nickname: "Ann", AvatarURL: "https://img.example/a.png", Gender: providers.GenderUnknown}
	}
	id.Raw = p
	return id
}

// failingStore simulates a backing-store outage on every call.
type failingStore struct{ err error }

func (f *failingStore) GetApp(ctx context.Context, id string) (tenants.App, error) {
	return tenants.App{}, f.err
}

func (f *failingStore) GetOwner(ctx context.Context, id string) (tenants.Owner, error) {
	return tenants.Owner{}, f.err
}

func (f *failingStore) UpsertApp(ctx context.Context, app tenants.App) error { return f.err }
func (f *failingStore) DeleteApp(ctx context.Context, id string) error       { return f.err }
func (f *failingStore) CountApps(ctx context.Context, ownerID string) (int, error) {
	return 0, f.err
}

type testEnv struct {
	svc     *Service
	adapter *fakeAdapter
	codec   *state.Codec
	ledger  *usage.Ledger
	store   tenants.Store
}

func newTestEnv(t *testing.T, tier plans.Tier) *testEnv {
	t.Helper()
	log := zap.NewNop().Sugar()
	store := tenants.NewMemoryStore()
	tenants.SetOwner(store, tenants.Owner{ID: "dev-1", Plan: tier})
	require.NoError(t, store.UpsertApp(context.Background(), tenants.App{
		ID:           "app-1",
		OwnerID:      "dev-1",
		Name:         "demo",
		RedirectBase: "https://app.example",
		Credentials: []tenants.ProviderCredential{
			{Provider: "wechat", ClientID: "wx-appid", ClientSecret: "wx-secret", Enabled: true},
			{Provider: "weibo", ClientID: "wb-key", ClientSecret: "wb-secret", Enabled: false},
		},
	}))

	adapter := &fakeAdapter{name: "wechat"}
	ledger := usage.NewLedger(usage.NewMemoryCounters(), store, plans.Defaults(), time.Minute, log)
	cfg := config.Config{
		BasePublicURL:  "https://gate.example/",
		TenantCacheTTL: time.Minute,
	}
	codec := state.NewCodec("test-secret", 600*time.Second)
	svc := NewService(cfg, providers.NewRegistry(adapter), codec, configcache.NewMemory(),
		store, ledger, identity.NewMemoryStore(), plans.Defaults(), log, NewMetrics(prometheus.NewRegistry()))
	return &testEnv{svc: svc, adapter: adapter, codec: codec, ledger: ledger, store: store}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("redirects to provider with signed state", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		redir, fail := env.svc.Login(ctx, LoginRequest{AppID: "app-1", Provider: "wechat", RedirectPath: "/done"})
		require.Nil(t, fail)
		u, err := url.Parse(redir.URL)
		require.NoError(t, err)
		require.Equal(t, "provider.example", u.Host)
		require.Equal(t, "https://gate.example/auth/callback", u.Query().Get("redirect_uri"))

		login, err := env.codec.Decode(u.Query().Get("state"))
		require.NoError(t, err)
		require.Equal(t, "app-1", login.AppID)
		require.Equal(t, "wechat", login.Provider)
		require.Equal(t, "/done", login.RedirectPath)
		require.NotEmpty(t, login.Nonce)
	})

	t.Run("missing parameters", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		_, fail := env.svc.Login(ctx, LoginRequest{AppID: "app-1"})
		require.NotNil(t, fail)
		require.Equal(t, CodeMissingParameters, fail.Code)
		require.Equal(t, http.StatusBadRequest, fail.Status)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		_, fail := env.svc.Login(ctx, LoginRequest{AppID: "nope", Provider: "wechat"})
		require.NotNil(t, fail)
		require.Equal(t, CodeUnknownTenant, fail.Code)
		require.Equal(t, http.StatusNotFound, fail.Status)
	})

	t.Run("store outage is internal error, not unknown tenant", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		log := zap.NewNop().Sugar()
		broken := &failingStore{err: errors.New("dial tcp: connection refused")}
		ledger := usage.NewLedger(usage.NewMemoryCounters(), broken, plans.Defaults(), time.Minute, log)
		svc := NewService(config.Config{BasePublicURL: "https://gate.example", TenantCacheTTL: time.Minute},
			providers.NewRegistry(env.adapter), env.codec, configcache.NewMemory(),
			broken, ledger, identity.NewMemoryStore(), plans.Defaults(), log, NewMetrics(prometheus.NewRegistry()))

		_, fail := svc.Login(ctx, LoginRequest{AppID: "app-1", Provider: "wechat"})
		require.NotNil(t, fail)
		require.Equal(t, CodeInternalError, fail.Code)
		require.Equal(t, http.StatusInternalServerError, fail.Status)
	})

	t.Run("disabled credential rejected like unknown provider", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		_, fail := env.svc.Login(ctx, LoginRequest{AppID: "app-1", Provider: "weibo"})
		require.NotNil(t, fail)
		require.Equal(t, CodeProviderNotSupported, fail.Code)
	})

	t.Run("unregistered provider rejected", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		_, fail := env.svc.Login(ctx, LoginRequest{AppID: "app-1", Provider: "qq"})
		require.NotNil(t, fail)
		require.Equal(t, CodeProviderNotSupported, fail.Code)
		require.Zero(t, env.adapter.authorizeN)
	})

	t.Run("limit exceeded before any provider contact", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		for i := 0; i < 200; i++ {
			require.NoError(t, env.ledger.RecordSuccess(ctx, "dev-1"))
		}
		_, fail := env.svc.Login(ctx, LoginRequest{AppID: "app-1", Provider: "wechat"})
		require.NotNil(t, fail)
		require.Equal(t, CodeLimitExceeded, fail.Code)
		require.Equal(t, http.StatusTooManyRequests, fail.Status)
		require.NotNil(t, fail.Decision)
		require.Equal(t, plans.Free, fail.Decision.Plan)
		require.Equal(t, plans.Pro, fail.Decision.RecommendedPlan)
		require.EqualValues(t, 200, fail.Decision.Usage.Daily)
		require.Zero(t, env.adapter.authorizeN)
	})
}

func TestCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("full flow redirects to app and records usage", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		st, err := env.codec.Encode(state.Login{AppID: "app-1", Provider: "wechat", RedirectPath: "/done", Nonce: "n1"})
		require.NoError(t, err)

		redir, fail := env.svc.Callback(ctx, CallbackRequest{Code: "c0de", State: st})
		require.Nil(t, fail)
		u, err := url.Parse(redir.URL)
		require.NoError(t, err)
		require.Equal(t, "app.example", u.Host)
		require.Equal(t, "/done", u.Path)
		require.Equal(t, "wechat", u.Query().Get("provider"))
		require.Equal(t, "open-1", u.Query().Get("openid"))
		require.Equal(t, "Ann", u.Query().Get("nickname"))
		require.NotEmpty(t, u.Query().Get("user_id"))

		usg, err := env.ledger.Usage(ctx, "dev-1")
		require.NoError(t, err)
		require.EqualValues(t, 1, usg.Daily)
		require.EqualValues(t, 1, usg.Monthly)
		require.Equal(t, "https://gate.example/auth/callback", env.adapter.seenCallback)
	})

	t.Run("same user keeps one identity record", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		var ids []string
		for i := 0; i < 2; i++ {
			nonce, err := state.NewNonce()
			require.NoError(t, err)
			st, err := env.codec.Encode(state.Login{AppID: "app-1", Provider: "wechat", Nonce: nonce})
			require.NoError(t, err)
			redir, fail := env.svc.Callback(ctx, CallbackRequest{Code: "c", State: st})
			require.Nil(t, fail)
			u, _ := url.Parse(redir.URL)
			ids = append(ids, u.Query().Get("user_id"))
		}
		require.Equal(t, ids[0], ids[1])
	})

	t.Run("invalid state stops before any provider call", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		_, fail := env.svc.Callback(ctx, CallbackRequest{Code: "c0de", State: "garbage"})
		require.NotNil(t, fail)
		require.Equal(t, CodeInvalidState, fail.Code)
		require.Zero(t, env.adapter.exchangeN)
	})

	t.Run("expired state stops before any provider call", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		stale := state.NewCodec("test-secret", -time.Second)
		st, err := stale.Encode(state.Login{AppID: "app-1", Provider: "wechat", Nonce: "n1"})
		require.NoError(t, err)
		_, fail := env.svc.Callback(ctx, CallbackRequest{Code: "c0de", State: st})
		require.NotNil(t, fail)
		require.Equal(t, CodeInvalidState, fail.Code)
		require.Zero(t, env.adapter.exchangeN)
		require.Zero(t, env.adapter.userInfoN)
	})

	t.Run("failed exchange leaves counters untouched", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		env.adapter.exchangeErr = &providers.ExchangeError{Provider: "wechat", Code: "40029", Message: "invalid code"}
		st, err := env.codec.Encode(state.Login{AppID: "app-1", Provider: "wechat", Nonce: "n1"})
		require.NoError(t, err)

		_, fail := env.svc.Callback(ctx, CallbackRequest{Code: "bad", State: st})
		require.NotNil(t, fail)
		require.Equal(t, CodeExchangeFailed, fail.Code)
		require.Equal(t, http.StatusBadGateway, fail.Status)
		require.Equal(t, "https://app.example/", fail.AppRedirect)

		usg, err := env.ledger.Usage(ctx, "dev-1")
		require.NoError(t, err)
		require.Zero(t, usg.Daily)
		require.Zero(t, usg.Monthly)
	})

	t.Run("failed userinfo leaves counters untouched", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		env.adapter.userInfoErr = &providers.UserInfoError{Provider: "wechat", Code: "http_502", Message: "bad gateway"}
		st, err := env.codec.Encode(state.Login{AppID: "app-1", Provider: "wechat", Nonce: "n1"})
		require.NoError(t, err)

		_, fail := env.svc.Callback(ctx, CallbackRequest{Code: "c", State: st})
		require.NotNil(t, fail)
		require.Equal(t, CodeUserInfoFailed, fail.Code)
		require.Equal(t, 1, env.adapter.exchangeN)

		usg, err := env.ledger.Usage(ctx, "dev-1")
		require.NoError(t, err)
		require.Zero(t, usg.Daily)
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()

	t.Run("reports usage and remaining for the plan", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		for i := 0; i < 3; i++ {
			require.NoError(t, env.ledger.RecordSuccess(ctx, "dev-1"))
		}
		resp, fail := env.svc.Stats(ctx, "dev-1")
		require.Nil(t, fail)
		require.Equal(t, "dev-1", resp.DeveloperID)
		require.Equal(t, "free", resp.Plan)
		require.EqualValues(t, 3, resp.Usage.Daily)
		require.EqualValues(t, 197, resp.Remaining.Daily)
		require.EqualValues(t, 2997, resp.Remaining.Monthly)
	})

	t.Run("enterprise remaining is unlimited", func(t *testing.T) {
		env := newTestEnv(t, plans.Enterprise)
		resp, fail := env.svc.Stats(ctx, "dev-1")
		require.Nil(t, fail)
		require.EqualValues(t, plans.Unlimited, resp.Remaining.Daily)
		require.EqualValues(t, plans.Unlimited, resp.Remaining.Monthly)
	})
}

func newTestRouter(env *testEnv) *chi.Mux {
	r := chi.NewRouter()
	NewHandler(env.svc).Routes(r)
	return r
}

func TestHandler(t *testing.T) {
	t.Run("login failure is a JSON error body", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		rec := httptest.NewRecorder()
		newTestRouter(env).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login?provider=wechat", nil))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, CodeMissingParameters, body["error"])
		require.NotEmpty(t, body["timestamp"])
	})

	t.Run("login failure for a known app redirects to the app", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		rec := httptest.NewRecorder()
		newTestRouter(env).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login?app_id=app-1&provider=qq&redirect=/done", nil))

		require.Equal(t, http.StatusFound, rec.Code)
		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "app.example", loc.Host)
		require.Equal(t, CodeProviderNotSupported, loc.Query().Get("error"))
	})

	t.Run("limit exceeded body carries plan guidance", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		for i := 0; i < 200; i++ {
			require.NoError(t, env.ledger.RecordSuccess(context.Background(), "dev-1"))
		}
		rec := httptest.NewRecorder()
		newTestRouter(env).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login?app_id=app-1&provider=wechat", nil))

		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		var body struct {
			Error        string `json:"error"`
			CurrentPlan  string `json:"current_plan"`
			RequiredPlan string `json:"required_plan"`
			CurrentUsage struct {
				Daily int64 `json:"daily"`
			} `json:"current_usage"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, CodeLimitExceeded, body.Error)
		require.Equal(t, "free", body.CurrentPlan)
		require.Equal(t, "pro", body.RequiredPlan)
		require.EqualValues(t, 200, body.CurrentUsage.Daily)
	})

	t.Run("callback accepts auth_code alias", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		st, err := env.codec.Encode(state.Login{AppID: "app-1", Provider: "wechat", Nonce: "n1"})
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		target := "/auth/callback?auth_code=c0de&state=" + url.QueryEscape(st)
		newTestRouter(env).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

		require.Equal(t, http.StatusFound, rec.Code)
		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "app.example", loc.Host)
		require.Equal(t, "wechat", loc.Query().Get("provider"))
	})

	t.Run("callback failure redirects back to the app with error params", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		env.adapter.exchangeErr = &providers.ExchangeError{Provider: "wechat", Code: "40029", Message: "invalid code"}
		st, err := env.codec.Encode(state.Login{AppID: "app-1", Provider: "wechat", RedirectPath: "/done", Nonce: "n1"})
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		target := "/auth/callback?code=bad&state=" + url.QueryEscape(st)
		newTestRouter(env).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

		require.Equal(t, http.StatusFound, rec.Code)
		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "app.example", loc.Host)
		require.Equal(t, "/done", loc.Path)
		require.Equal(t, CodeExchangeFailed, loc.Query().Get("error"))
	})

	t.Run("callback invalid state is JSON, the app is unknown", func(t *testing.T) {
		env := newTestEnv(t, plans.Free)
		rec := httptest.NewRecorder()
		newTestRouter(env).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=garbage", nil))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, CodeInvalidState, body["error"])
	})

	t.Run("stats endpoint", func(t *testing.T) {
		env := newTestEnv(t, plans.Pro)
		rec := httptest.NewRecorder()
		newTestRouter(env).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/usage/stats?developer_id=dev-1", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp StatsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "pro", resp.Plan)
		require.EqualValues(t, 5000, resp.Limits.Daily)
	})
}
