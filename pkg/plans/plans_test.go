package plans_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"authgate/pkg/plans"
)

func TestNext(t *testing.T) {
	t.Run("free upgrades to pro", func(t *testing.T) {
		require.Equal(t, plans.Pro, plans.Next(plans.Free))
	})
	t.Run("business upgrades to enterprise", func(t *testing.T) {
		require.Equal(t, plans.Enterprise, plans.Next(plans.Business))
	})
	t.Run("enterprise has no upgrade", func(t *testing.T) {
		require.Equal(t, plans.Tier(""), plans.Next(plans.Enterprise))
	})
	t.Run("unknown tier has no upgrade", func(t *testing.T) {
		require.Equal(t, plans.Tier(""), plans.Next(plans.Tier("gold")))
	})
}

func TestNormalize(t *testing.T) {
	require.Equal(t, plans.Pro, plans.Normalize(plans.Pro))
	require.Equal(t, plans.Free, plans.Normalize(plans.Tier("")))
	require.Equal(t, plans.Free, plans.Normalize(plans.Tier("platinum")))
}

func TestLoad(t *testing.T) {
	t.Run("defaults when no file", func(t *testing.T) {
		tb, err := plans.Load("")
		require.NoError(t, err)
		require.EqualValues(t, 200, tb[plans.Free].Daily)
		require.Equal(t, plans.Unlimited, tb[plans.Enterprise].MaxApps)
	})

	t.Run("file overrides one tier", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plans.yaml")
		require.NoError(t, os.WriteFile(path, []byte("pro:\n  daily: 9000\n  monthly: 200000\n  max_apps: 20\n"), 0o600))
		tb, err := plans.Load(path)
		require.NoError(t, err)
		require.EqualValues(t, 9000, tb[plans.Pro].Daily)
		// untouched tiers keep defaults
		require.EqualValues(t, 200, tb[plans.Free].Daily)
	})

	t.Run("partial override keeps the other default bounds", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plans.yaml")
		require.NoError(t, os.WriteFile(path, []byte("free:\n  daily: 500\n"), 0o600))
		tb, err := plans.Load(path)
		require.NoError(t, err)
		require.EqualValues(t, 500, tb[plans.Free].Daily)
		require.EqualValues(t, 3000, tb[plans.Free].Monthly)
		require.Equal(t, 3, tb[plans.Free].MaxApps)
	})

	t.Run("unknown tier rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plans.yaml")
		require.NoError(t, os.WriteFile(path, []byte("gold:\n  daily: 1\n"), 0o600))
		_, err := plans.Load(path)
		require.Error(t, err)
	})

	t.Run("unknown tier normalizes to free limits", func(t *testing.T) {
		tb, err := plans.Load("")
		require.NoError(t, err)
		require.Equal(t, tb[plans.Free], tb.For(plans.Tier("nope")))
	})
}
