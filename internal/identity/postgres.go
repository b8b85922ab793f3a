// internal/identity/postgres.go
package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"authgate/internal/providers"
)

type pgStore struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgresStore constructs a PostgreSQL-backed identity store.
func NewPostgresStore(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Store {
	return &pgStore{dbPool: dbPool, log: log}
}

// EnsureSchema creates the identities table if absent. Idempotent.
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS identities (
  id uuid PRIMARY KEY,
  provider text NOT NULL,
  subject text NOT NULL,
  user_id text NOT NULL DEFAULT '',
  union_id text NOT NULL DEFAULT '',
  nickname text NOT NULL DEFAULT '',
  avatar_url text NOT NULL DEFAULT '',
  gender text NOT NULL DEFAULT 'unknown',
  created_at timestamptz NOT NULL DEFAULT NOW(),
  UNIQUE(provider, subject)
);
`)
	return err
}

func (p *pgStore) FindOrCreate(ctx context.Context, id providers.Identity) (Record, error) {
	provider, subject := id.Key()
	// the no-op update makes RETURNING yield the row on conflict as well
	row := p.dbPool.QueryRow(ctx, `INSERT INTO identities(id,provider,subject,user_id,union_id,nickname,avatar_url,gender)
	  VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	  ON CONFLICT (provider, subject) DO UPDATE SET provider=EXCLUDED.provider
	  RETURNING id,provider,subject,user_id,union_id,nickname,avatar_url,gender,created_at`,
		uuid.NewString(), provider, subject, id.UserID, id.UnionID, id.Nickname, id.AvatarURL, string(id.Gender))
	var rec Record
	if err := row.Scan(&rec.ID, &rec.Provider, &rec.Subject, &rec.UserID, &rec.UnionID, &rec.Nickname, &rec.AvatarURL, &rec.Gender, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}
