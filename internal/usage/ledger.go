// Package usage tracks completed logins per owner against calendar-windowed
// quotas and decides admission. Admission runs strictly before the provider
// redirect; counters move strictly after a successful identity resolution.
package usage

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"authgate/pkg/plans"
	"authgate/pkg/tenants"
)

const (
	ReasonDaily   = "Daily limit exceeded"
	ReasonMonthly = "Monthly limit exceeded"
)

// Usage is one owner's counter pair for the current UTC windows.
type Usage struct {
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
}

// Decision is the admission-check outcome. RecommendedPlan is the next tier
// up, empty when already at the top.
type Decision struct {
	Allowed         bool
	Reason          string
	Plan            plans.Tier
	RecommendedPlan plans.Tier
	Usage           Usage
	Limits          plans.Limits
}

type Ledger struct {
	counters Counters
	store    tenants.Store
	table    plans.Table
	planTTL  time.Duration
	planCch  *gocache.Cache
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewLedger(counters Counters, store tenants.Store, table plans.Table, planTTL time.Duration, log *zap.SugaredLogger) *Ledger {
	return &Ledger{
		counters: counters,
		store:    store,
		table:    table,
		planTTL:  planTTL,
		planCch:  gocache.New(planTTL, time.Minute),
		log:      log,
		now:      time.Now,
	}
}

// Plan resolves the owner's tier through a short-lived cache. A store failure
// fails closed onto the most restrictive plan.
func (l *Ledger) Plan(ctx context.Context, ownerID string) plans.Tier {
	if v, ok := l.planCch.Get(ownerID); ok {
		return v.(plans.Tier)
	}
	owner, err := l.store.GetOwner(ctx, ownerID)
	if err != nil {
		l.log.Warnw("plan lookup failed, defaulting to free", "owner", ownerID, "err", err)
		return plans.Free
	}
	tier := plans.Normalize(owner.Plan)
	l.planCch.Set(ownerID, tier, l.planTTL)
	return tier
}

// Usage reads the current window counters; absent keys are zero.
func (l *Ledger) Usage(ctx context.Context, ownerID string) (Usage, error) {
	now := l.now()
	daily, err := l.counters.Get(ctx, dayKey(ownerID, now))
	if err != nil {
		return Usage{}, err
	}
	monthly, err := l.counters.Get(ctx, monthKey(ownerID, now))
	if err != nil {
		return Usage{}, err
	}
	return Usage{Daily: daily, Monthly: monthly}, nil
}

// CheckAdmission compares current usage to the owner's plan limits, daily
// bound first; the first violated bound names the denial.
func (l *Ledger) CheckAdmission(ctx context.Context, ownerID string) (Decision, error) {
	tier := l.Plan(ctx, ownerID)
	limits := l.table.For(tier)
	usage, err := l.Usage(ctx, ownerID)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Allowed: true, Plan: tier, Usage: usage, Limits: limits}
	if limits.Daily != plans.Unlimited && usage.Daily >= limits.Daily {
		d.Allowed = false
		d.Reason = ReasonDaily
		d.RecommendedPlan = plans.Next(tier)
		return d, nil
	}
	if limits.Monthly != plans.Unlimited && usage.Monthly >= limits.Monthly {
		d.Allowed = false
		d.Reason = ReasonMonthly
		d.RecommendedPlan = plans.Next(tier)
		return d, nil
	}
	return d, nil
}

// RecordSuccess increments both window counters, re-arming each expiry to the
// end of its calendar window.
func (l *Ledger) RecordSuccess(ctx context.Context, ownerID string) error {
	now := l.now()
	if err := l.counters.IncrWithExpiry(ctx, dayKey(ownerID, now), endOfUTCDay(now)); err != nil {
		return err
	}
	return l.counters.IncrWithExpiry(ctx, monthKey(ownerID, now), endOfUTCMonth(now))
}

// InvalidatePlan drops a cached tier; called when an owner's subscription
// changes.
func (l *Ledger) InvalidatePlan(ownerID string) {
	l.planCch.Delete(ownerID)
}
