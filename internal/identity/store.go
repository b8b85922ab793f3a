// Package identity is the narrow find-or-create interface over the backing
// identity-record store. The gateway never updates or deletes records here.
package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"authgate/internal/providers"
)

// Record is one persisted external identity.
type Record struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Subject   string    `json:"subject"` // union id when federated, else provider user id
	UserID    string    `json:"user_id"`
	UnionID   string    `json:"union_id,omitempty"`
	Nickname  string    `json:"nickname"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Gender    string    `json:"gender"`
	CreatedAt time.Time `json:"created_at"`
}

// Store resolves a normalized identity to a record, creating one on first
// sight. Idempotent per (provider, subject).
type Store interface {
	FindOrCreate(ctx context.Context, id providers.Identity) (Record, error)
}

type memStore struct {
	mu   sync.Mutex
	byID map[string]Record // key: provider + "\x00" + subject
}

// NewMemoryStore is the dev/test identity store.
func NewMemoryStore() Store {
	return &memStore{byID: map[string]Record{}}
}

func (m *memStore) FindOrCreate(ctx context.Context, id providers.Identity) (Record, error) {
	provider, subject := id.Key()
	key := provider + "\x00" + subject
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.byID[key]; ok {
		return rec, nil
	}
	rec := Record{
		ID:        uuid.NewString(),
		Provider:  provider,
		Subject:   subject,
		UserID:    id.UserID,
		UnionID:   id.UnionID,
		Nickname:  id.Nickname,
		AvatarURL: id.AvatarURL,
		Gender:    string(id.Gender),
		CreatedAt: time.Now().UTC(),
	}
	m.byID[key] = rec
	return rec, nil
}
