// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// Public base URL of this gateway; the provider callback URL is
	// BasePublicURL + "/auth/callback" on both legs of the flow.
	BasePublicURL string

	// State token signing secret (HMAC).
	StateSecret string
	StateTTL    time.Duration

	// Admin API bearer verification (unset in dev => auth bypassed)
	AdminIssuer  string
	AdminJWKSURL string

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string

	// Optional plan-limits override file (YAML)
	PlanLimitsFile string

	ProviderTimeout time.Duration
	TenantCacheTTL  time.Duration
	PlanCacheTTL    time.Duration
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:             env("AUTHGATE_ENV", "dev"),
		HTTPAddr:        env("AUTHGATE_HTTP_ADDR", ":8080"),
		BasePublicURL:   env("BASE_PUBLIC_URL", "http://localhost:8080"),
		StateSecret:     env("STATE_SECRET", ""),
		StateTTL:        envDur("STATE_TTL_SEC", 600) * time.Second,
		AdminIssuer:     env("ADMIN_TOKEN_ISSUER", ""),
		AdminJWKSURL:    env("ADMIN_JWKS_URL", ""),
		RedisURL:        env("REDIS_URL", ""),
		DatabaseURL:     env("DATABASE_URL", ""),
		PlanLimitsFile:  env("PLAN_LIMITS_FILE", ""),
		ProviderTimeout: envDur("PROVIDER_TIMEOUT_SEC", 30) * time.Second,
		TenantCacheTTL:  envDur("TENANT_CACHE_TTL_SEC", 300) * time.Second,
		PlanCacheTTL:    envDur("PLAN_CACHE_TTL_SEC", 300) * time.Second,
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set — using in-memory app store for dev")
	}
	if cfg.StateSecret == "" && cfg.Env != "dev" {
		log.Println("[WARN] STATE_SECRET not set — state tokens use an ephemeral key, restarts invalidate in-flight logins")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
