// Package adminapi is the administrative mutation surface: tenant app
// registration and removal. It sits behind bearer auth; the public login
// endpoints never route through here.
package adminapi

import (
	"go.uber.org/zap"

	"authgate/internal/configcache"
	"authgate/internal/usage"
	"authgate/pkg/plans"
	"authgate/pkg/tenants"
)

// App is the admin-api application container.
// Handlers are methods on this type.
//
// Keep it lean: shared deps only. Request-scoped work uses context.
type App struct {
	log    *zap.SugaredLogger
	store  tenants.Store
	cache  configcache.Cache
	ledger *usage.Ledger
	table  plans.Table
}

func New(log *zap.SugaredLogger, store tenants.Store, cache configcache.Cache, ledger *usage.Ledger, table plans.Table) *App {
	return &App{log: log, store: store, cache: cache, ledger: ledger, table: table}
}
