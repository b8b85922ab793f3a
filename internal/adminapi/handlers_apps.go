package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"authgate/pkg/plans"
	"authgate/pkg/tenants"
)

type appBody struct {
	OwnerID       string                       `json:"owner_id"`
	Name          string                       `json:"name"`
	RedirectBase  string                       `json:"redirect_base"`
	StoreEndpoint string                       `json:"store_endpoint"`
	StoreSecret   string                       `json:"store_secret"`
	Credentials   []tenants.ProviderCredential `json:"credentials"`
}

// Routes mounts the admin endpoints on the given router; auth middleware is
// applied by the caller.
func (a *App) Routes(r chi.Router) {
	r.Get("/apps/{id}", a.getApp)
	r.Put("/apps/{id}", a.putApp)
	r.Delete("/apps/{id}", a.deleteApp)
}

func (a *App) getApp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	app, err := a.store.GetApp(r.Context(), id)
	if err != nil {
		if errors.Is(err, tenants.ErrAppNotFound) {
			http.Error(w, "app not found", http.StatusNotFound)
			return
		}
		a.log.Errorw("admin get app", "app", id, "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, appView(app), http.StatusOK)
}

func (a *App) putApp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var b appBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(b.OwnerID) == "" || strings.TrimSpace(b.RedirectBase) == "" {
		http.Error(w, "owner_id and redirect_base are required", http.StatusBadRequest)
		return
	}
	for _, c := range b.Credentials {
		if c.Provider == "" || c.ClientID == "" {
			http.Error(w, "credential provider and client_id are required", http.StatusBadRequest)
			return
		}
	}

	_, err := a.store.GetApp(r.Context(), id)
	creating := errors.Is(err, tenants.ErrAppNotFound)
	if err != nil && !creating {
		a.log.Errorw("admin app lookup", "app", id, "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if creating {
		// The app quota is a plan limit like the login quotas, enforced at
		// registration time.
		limits := a.table.For(a.ledger.Plan(r.Context(), b.OwnerID))
		if limits.MaxApps != plans.Unlimited {
			n, err := a.store.CountApps(r.Context(), b.OwnerID)
			if err != nil {
				a.log.Errorw("admin app count", "owner", b.OwnerID, "err", err)
				http.Error(w, "db error", http.StatusInternalServerError)
				return
			}
			if n >= limits.MaxApps {
				writeJSON(w, map[string]any{
					"error":             "LIMIT_EXCEEDED",
					"error_description": "App limit exceeded",
					"required_plan":     string(plans.Next(a.ledger.Plan(r.Context(), b.OwnerID))),
				}, http.StatusTooManyRequests)
				return
			}
		}
	}

	app := tenants.App{
		ID:            id,
		OwnerID:       b.OwnerID,
		Name:          b.Name,
		RedirectBase:  b.RedirectBase,
		StoreEndpoint: b.StoreEndpoint,
		StoreSecret:   b.StoreSecret,
		Credentials:   b.Credentials,
	}
	if err := a.store.UpsertApp(r.Context(), app); err != nil {
		a.log.Errorw("admin app upsert", "app", id, "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	a.cache.Invalidate(r.Context(), id)
	a.ledger.InvalidatePlan(b.OwnerID)
	writeJSON(w, map[string]any{"ok": true, "id": id, "created": creating}, http.StatusOK)
}

func (a *App) deleteApp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	app, err := a.store.GetApp(r.Context(), id)
	if err != nil {
		if errors.Is(err, tenants.ErrAppNotFound) {
			http.Error(w, "app not found", http.StatusNotFound)
			return
		}
		a.log.Errorw("admin get app", "app", id, "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if err := a.store.DeleteApp(r.Context(), id); err != nil {
		a.log.Errorw("admin app delete", "app", id, "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	a.cache.Invalidate(r.Context(), id)
	a.ledger.InvalidatePlan(app.OwnerID)
	writeJSON(w, map[string]any{"ok": true}, http.StatusOK)
}

// appView omits the store secret from admin reads.
func appView(app tenants.App) map[string]any {
	creds := make([]map[string]any, 0, len(app.Credentials))
	for _, c := range app.Credentials {
		creds = append(creds, map[string]any{
			"provider":  c.Provider,
			"client_id": c.ClientID,
			"enabled":   c.Enabled,
		})
	}
	return map[string]any{
		"id":             app.ID,
		"owner_id":       app.OwnerID,
		"name":           app.Name,
		"redirect_base":  app.RedirectBase,
		"store_endpoint": app.StoreEndpoint,
		"credentials":    creds,
		"created_at":     app.CreatedAt,
		"updated_at":     app.UpdatedAt,
	}
}
