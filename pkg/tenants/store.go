package tenants

import (
	"context"
	"errors"
)

var (
	ErrAppNotFound   = errors.New("app not found")
	ErrOwnerNotFound = errors.New("owner not found")
)

// Store is the narrow backing-store interface the gateway reads tenant
// configuration and plan tiers through.
type Store interface {
	GetApp(ctx context.Context, id string) (App, error)
	GetOwner(ctx context.Context, id string) (Owner, error)

	// Administrative mutations; callers must invalidate the config cache.
	UpsertApp(ctx context.Context, app App) error
	DeleteApp(ctx context.Context, id string) error
	CountApps(ctx context.Context, ownerID string) (int, error)
}
