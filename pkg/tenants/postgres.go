// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"authgate/pkg/plans"
)

// pgStore implements Store backed by PostgreSQL.
type pgStore struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgresStore constructs a PostgreSQL-backed tenant store.
func NewPostgresStore(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Store {
	return &pgStore{dbPool: dbPool, log: log}
}

// EnsureSchema creates required tables if they do not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS owners (
  id text PRIMARY KEY,
  plan text NOT NULL DEFAULT 'free'
);
CREATE TABLE IF NOT EXISTS apps (
  id uuid PRIMARY KEY,
  owner_id text NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
  name text NOT NULL DEFAULT '',
  redirect_base text NOT NULL DEFAULT '',
  store_endpoint text NOT NULL DEFAULT '',
  store_secret text NOT NULL DEFAULT '',
  credentials jsonb NOT NULL DEFAULT '[]'::jsonb,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS apps_owner_idx ON apps(owner_id);
`)
	return err
}

// SeedFromEnv ingests initial owner + app data (APP_SEED_JSON); format mirrors
// the memory store seed. Errors on individual rows are logged, not fatal.
func SeedFromEnv(ctx context.Context, dbPool *pgxpool.Pool, log *zap.SugaredLogger, jsonSeed string) error {
	if jsonSeed == "" {
		return nil
	}
	entries, err := parseSeed(jsonSeed)
	if err != nil {
		return err
	}
	for _, e := range entries {
		creds, _ := json.Marshal(e.Credentials)
		if _, err := dbPool.Exec(ctx, `INSERT INTO owners(id,plan) VALUES ($1,$2)
		  ON CONFLICT (id) DO UPDATE SET plan=EXCLUDED.plan`, e.OwnerID, string(plans.Normalize(plans.Tier(e.Plan)))); err != nil {
			log.Warnw("seed owner", "owner", e.OwnerID, "err", err)
			continue
		}
		if _, err := dbPool.Exec(ctx, `INSERT INTO apps(id,owner_id,name,redirect_base,store_endpoint,store_secret,credentials)
		  VALUES ($1,$2,$3,$4,$5,$6,$7)
		  ON CONFLICT (id) DO UPDATE SET owner_id=EXCLUDED.owner_id,name=EXCLUDED.name,redirect_base=EXCLUDED.redirect_base,
		    store_endpoint=EXCLUDED.store_endpoint,store_secret=EXCLUDED.store_secret,credentials=EXCLUDED.credentials,updated_at=NOW()`,
			e.ID, e.OwnerID, e.Name, e.RedirectBase, e.StoreEndpoint, e.StoreSecret, creds); err != nil {
			log.Warnw("seed app", "app", e.ID, "err", err)
		}
	}
	return nil
}

// GetApp fetches an app by its UUID.
func (p *pgStore) GetApp(ctx context.Context, id string) (App, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT id,owner_id,name,redirect_base,store_endpoint,store_secret,credentials,created_at,updated_at FROM apps WHERE id=$1`, id)
	var a App
	var credsJSON []byte
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.RedirectBase, &a.StoreEndpoint, &a.StoreSecret, &credsJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return App{}, ErrAppNotFound
		}
		return App{}, fmt.Errorf("get app %s: %w", id, err)
	}
	if len(credsJSON) > 0 {
		_ = json.Unmarshal(credsJSON, &a.Credentials)
	}
	return a, nil
}

// GetOwner fetches an owner and its plan tier.
func (p *pgStore) GetOwner(ctx context.Context, id string) (Owner, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT id,plan FROM owners WHERE id=$1`, id)
	var o Owner
	var plan string
	if err := row.Scan(&o.ID, &plan); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Owner{}, ErrOwnerNotFound
		}
		return Owner{}, fmt.Errorf("get owner %s: %w", id, err)
	}
	o.Plan = plans.Normalize(plans.Tier(plan))
	return o, nil
}

func (p *pgStore) UpsertApp(ctx context.Context, app App) error {
	creds, err := json.Marshal(app.Credentials)
	if err != nil {
		return err
	}
	if _, err := p.dbPool.Exec(ctx, `INSERT INTO owners(id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, app.OwnerID); err != nil {
		return err
	}
	_, err = p.dbPool.Exec(ctx, `INSERT INTO apps(id,owner_id,name,redirect_base,store_endpoint,store_secret,credentials)
	  VALUES ($1,$2,$3,$4,$5,$6,$7)
	  ON CONFLICT (id) DO UPDATE SET owner_id=EXCLUDED.owner_id,name=EXCLUDED.name,redirect_base=EXCLUDED.redirect_base,
	    store_endpoint=EXCLUDED.store_endpoint,store_secret=EXCLUDED.store_secret,credentials=EXCLUDED.credentials,updated_at=NOW()`,
		app.ID, app.OwnerID, app.Name, app.RedirectBase, app.StoreEndpoint, app.StoreSecret, creds)
	return err
}

func (p *pgStore) DeleteApp(ctx context.Context, id string) error {
	_, err := p.dbPool.Exec(ctx, `DELETE FROM apps WHERE id=$1`, id)
	return err
}

func (p *pgStore) CountApps(ctx context.Context, ownerID string) (int, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT COUNT(*) FROM apps WHERE owner_id=$1`, ownerID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// seedEntry is the shared seed format for both store implementations.
type seedEntry struct {
	ID            string               `json:"id"`
	OwnerID       string               `json:"owner_id"`
	Plan          string               `json:"plan"`
	Name          string               `json:"name"`
	RedirectBase  string               `json:"redirect_base"`
	StoreEndpoint string               `json:"store_endpoint"`
	StoreSecret   string               `json:"store_secret"`
	Credentials   []ProviderCredential `json:"credentials"`
}

func parseSeed(raw string) ([]seedEntry, error) {
	var entries []seedEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
