// pkg/tenants/memory.go
package tenants

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"authgate/pkg/plans"
)

type memStore struct {
	log    *zap.SugaredLogger
	mu     sync.RWMutex
	apps   map[string]App
	owners map[string]Owner
}

// NewMemoryStoreFromEnv builds an in-memory store seeded from APP_SEED_JSON.
// Dev/test only; nothing survives a restart.
func NewMemoryStoreFromEnv(log *zap.SugaredLogger) Store {
	m := &memStore{log: log, apps: map[string]App{}, owners: map[string]Owner{}}
	seed := os.Getenv("APP_SEED_JSON")
	if seed == "" {
		return m
	}
	entries, err := parseSeed(seed)
	if err != nil {
		log.Warnw("app seed parse", "err", err)
		return m
	}
	for _, e := range entries {
		m.owners[e.OwnerID] = Owner{ID: e.OwnerID, Plan: plans.Normalize(plans.Tier(e.Plan))}
		m.apps[e.ID] = App{
			ID: e.ID, OwnerID: e.OwnerID, Name: e.Name,
			RedirectBase: e.RedirectBase, StoreEndpoint: e.StoreEndpoint, StoreSecret: e.StoreSecret,
			Credentials: e.Credentials,
			CreatedAt:   time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		}
	}
	return m
}

// NewMemoryStore builds an empty in-memory store for tests.
func NewMemoryStore() Store {
	return &memStore{log: zap.NewNop().Sugar(), apps: map[string]App{}, owners: map[string]Owner{}}
}

func (m *memStore) GetApp(ctx context.Context, id string) (App, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.apps[id]; ok {
		return a, nil
	}
	return App{}, ErrAppNotFound
}

func (m *memStore) GetOwner(ctx context.Context, id string) (Owner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if o, ok := m.owners[id]; ok {
		return o, nil
	}
	return Owner{}, ErrOwnerNotFound
}

func (m *memStore) UpsertApp(ctx context.Context, app App) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[app.OwnerID]; !ok {
		m.owners[app.OwnerID] = Owner{ID: app.OwnerID, Plan: plans.Free}
	}
	now := time.Now().UTC()
	if prev, ok := m.apps[app.ID]; ok {
		app.CreatedAt = prev.CreatedAt
	} else {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	m.apps[app.ID] = app
	return nil
}

func (m *memStore) DeleteApp(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.apps, id)
	return nil
}

func (m *memStore) CountApps(ctx context.Context, ownerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.apps {
		if a.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

// SetOwner sets an owner record directly; used by seeds and tests.
func SetOwner(s Store, o Owner) {
	if m, ok := s.(*memStore); ok {
		m.mu.Lock()
		m.owners[o.ID] = o
		m.mu.Unlock()
	}
}
