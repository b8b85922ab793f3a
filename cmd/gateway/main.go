// cmd/gateway/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"authgate/internal/adminapi"
	"authgate/internal/configcache"
	"authgate/internal/gateway"
	"authgate/internal/identity"
	"authgate/internal/providers"
	"authgate/internal/state"
	"authgate/internal/usage"
	"authgate/pkg/config"
	"authgate/pkg/db"
	"authgate/pkg/logger"
	"authgate/pkg/middleware"
	"authgate/pkg/plans"
	"authgate/pkg/tenants"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	pool := db.MustConnect(cfg, log)
	rds := db.MustRedis(cfg, log)

	var store tenants.Store
	var idents identity.Store
	if pool != nil {
		if err := tenants.EnsureSchema(context.Background(), pool); err != nil {
			log.Fatalw("schema", "err", err)
		}
		if err := identity.EnsureSchema(context.Background(), pool); err != nil {
			log.Fatalw("identity schema", "err", err)
		}
		if err := tenants.SeedFromEnv(context.Background(), pool, log, os.Getenv("APP_SEED_JSON")); err != nil {
			log.Warnw("seed", "err", err)
		}
		store = tenants.NewPostgresStore(pool, log)
		idents = identity.NewPostgresStore(pool, log)
	} else {
		store = tenants.NewMemoryStoreFromEnv(log)
		idents = identity.NewMemoryStore()
	}

	var cache configcache.Cache
	var counters usage.Counters
	if rds != nil {
		cache = configcache.NewRedis(rds, log)
		counters = usage.NewRedisCounters(rds)
	} else {
		log.Warnw("REDIS_URL not set, using in-process cache and counters")
		cache = configcache.NewMemory()
		counters = usage.NewMemoryCounters()
	}

	table, err := plans.Load(cfg.PlanLimitsFile)
	if err != nil {
		log.Fatalw("plan limits", "err", err)
	}
	ledger := usage.NewLedger(counters, store, table, cfg.PlanCacheTTL, log)

	registry := providers.NewRegistry(providers.All(&http.Client{Timeout: cfg.ProviderTimeout})...)
	codec := state.NewCodec(cfg.StateSecret, cfg.StateTTL)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	svc := gateway.NewService(cfg, registry, codec, cache, store, ledger, idents, table, log, gateway.NewMetrics(reg))
	admin := adminapi.New(log, store, cache, ledger, table)

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.CORS())
	r.Use(middleware.Tracing())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	r.Get("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP)
	gateway.NewHandler(svc).Routes(r)
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(middleware.AdminAuth(cfg))
		admin.Routes(ar)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Infow("gateway listening", "addr", cfg.HTTPAddr, "providers", registry.Names())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("gateway stopped")
}
