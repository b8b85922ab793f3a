package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"authgate/pkg/plans"
	"authgate/pkg/tenants"
)

func newTestLedger(t *testing.T, tier plans.Tier) (*Ledger, Counters) {
	t.Helper()
	store := tenants.NewMemoryStore()
	tenants.SetOwner(store, tenants.Owner{ID: "dev-1", Plan: tier})
	counters := NewMemoryCounters()
	return NewLedger(counters, store, plans.Defaults(), 5*time.Minute, zap.NewNop().Sugar()), counters
}

func TestCheckAdmission(t *testing.T) {
	ctx := context.Background()

	t.Run("under both limits allowed", func(t *testing.T) {
		l, _ := newTestLedger(t, plans.Free)
		for i := 0; i < 199; i++ {
			require.NoError(t, l.RecordSuccess(ctx, "dev-1"))
		}
		d, err := l.CheckAdmission(ctx, "dev-1")
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.EqualValues(t, 199, d.Usage.Daily)
	})

	t.Run("daily limit denies regardless of monthly", func(t *testing.T) {
		l, _ := newTestLedger(t, plans.Free)
		for i := 0; i < 200; i++ {
			require.NoError(t, l.RecordSuccess(ctx, "dev-1"))
		}
		d, err := l.CheckAdmission(ctx, "dev-1")
		require.NoError(t, err)
		require.False(t, d.Allowed)
		require.Equal(t, ReasonDaily, d.Reason)
		require.Equal(t, plans.Pro, d.RecommendedPlan)
	})

	t.Run("monthly limit checked after daily", func(t *testing.T) {
		l, _ := newTestLedger(t, plans.Free)
		// park the monthly counter at its limit inside an earlier day of the
		// same month so the daily counter stays clear
		now := time.Now().UTC()
		l.now = func() time.Time { return now }
		key := monthKey("dev-1", now)
		for i := int64(0); i < plans.Defaults()[plans.Free].Monthly; i++ {
			require.NoError(t, l.counters.IncrWithExpiry(ctx, key, endOfUTCMonth(now)))
		}
		d, err := l.CheckAdmission(ctx, "dev-1")
		require.NoError(t, err)
		require.False(t, d.Allowed)
		require.Equal(t, ReasonMonthly, d.Reason)
	})

	t.Run("enterprise is unlimited", func(t *testing.T) {
		l, _ := newTestLedger(t, plans.Enterprise)
		for i := 0; i < 500; i++ {
			require.NoError(t, l.RecordSuccess(ctx, "dev-1"))
		}
		d, err := l.CheckAdmission(ctx, "dev-1")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	})

	t.Run("unknown owner fails closed to free", func(t *testing.T) {
		l, _ := newTestLedger(t, plans.Enterprise)
		d, err := l.CheckAdmission(ctx, "nobody")
		require.NoError(t, err)
		require.Equal(t, plans.Free, d.Plan)
	})
}

func TestRecordSuccessWindows(t *testing.T) {
	ctx := context.Background()
	l, counters := newTestLedger(t, plans.Free)

	base := time.Date(2024, 5, 31, 23, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	mc := counters.(*memCounters)
	mc.now = l.now

	require.NoError(t, l.RecordSuccess(ctx, "dev-1"))
	require.NoError(t, l.RecordSuccess(ctx, "dev-1"))
	u, err := l.Usage(ctx, "dev-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, u.Daily)
	require.EqualValues(t, 2, u.Monthly)

	t.Run("next day resets daily, keeps monthly until month end", func(t *testing.T) {
		// 2024-05-31 23:00 + 2h crosses both the day and the month boundary
		next := base.Add(2 * time.Hour)
		l.now = func() time.Time { return next }
		mc.now = l.now
		u, err := l.Usage(ctx, "dev-1")
		require.NoError(t, err)
		require.EqualValues(t, 0, u.Daily)
		require.EqualValues(t, 0, u.Monthly) // month rolled over too
	})
}

func TestPlanCache(t *testing.T) {
	ctx := context.Background()
	store := tenants.NewMemoryStore()
	tenants.SetOwner(store, tenants.Owner{ID: "dev-1", Plan: plans.Free})
	l := NewLedger(NewMemoryCounters(), store, plans.Defaults(), 5*time.Minute, zap.NewNop().Sugar())

	require.Equal(t, plans.Free, l.Plan(ctx, "dev-1"))

	// upgrade is invisible until the cache entry is dropped
	tenants.SetOwner(store, tenants.Owner{ID: "dev-1", Plan: plans.Business})
	require.Equal(t, plans.Free, l.Plan(ctx, "dev-1"))
	l.InvalidatePlan("dev-1")
	require.Equal(t, plans.Business, l.Plan(ctx, "dev-1"))
}
