package configcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"authgate/pkg/tenants"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	app := tenants.App{ID: "app-1", OwnerID: "dev-1", RedirectBase: "https://app.example.com"}

	t.Run("miss before put", func(t *testing.T) {
		_, ok := c.Get(ctx, "app-1")
		require.False(t, ok)
	})

	t.Run("hit after put", func(t *testing.T) {
		c.Put(ctx, app, 5*time.Minute)
		got, ok := c.Get(ctx, "app-1")
		require.True(t, ok)
		require.Equal(t, "dev-1", got.OwnerID)
	})

	t.Run("miss after invalidate", func(t *testing.T) {
		c.Invalidate(ctx, "app-1")
		_, ok := c.Get(ctx, "app-1")
		require.False(t, ok)
	})

	t.Run("entry expires with its ttl", func(t *testing.T) {
		c.Put(ctx, app, 10*time.Millisecond)
		time.Sleep(30 * time.Millisecond)
		_, ok := c.Get(ctx, "app-1")
		require.False(t, ok)
	})
}
