// Package impact reads the server-computed aggregate and decides when it
// needs recomputing.
package impact

import (
	"context"
	"fmt"

	"impact/internal/cache"
	"impact/internal/core"
	"impact/internal/log"
	"impact/internal/persistence"
)

// View is what the impact screen shows for one user.
type View struct {
	core.ImpactAggregate
	LocalAnnualSum    float64 `json:"localAnnualSum"`
	DisplayedEstimate float64 `json:"displayedEstimate"`
}

// NewView combines a server aggregate with the annual sum of the locally
// loaded events.
func NewView(agg core.ImpactAggregate, localAnnualSum float64) View {
	return View{
		ImpactAggregate:   agg,
		LocalAnnualSum:    localAnnualSum,
		DisplayedEstimate: core.DisplayedEstimate(agg.ImpactAnnualEstimated, localAnnualSum),
	}
}

// Reader serves aggregates from a short-lived cache in front of the store.
// It also stores recomputed aggregates, keeping the cache in step.
type Reader struct {
	store  persistence.AggregateStore
	cache  cache.Cache[core.ImpactAggregate]
	logger *log.Logger
}

// NewReader builds a Reader. A nil cache disables caching.
func NewReader(store persistence.AggregateStore, c cache.Cache[core.ImpactAggregate], logger *log.Logger) *Reader {
	return &Reader{
		store:  store,
		cache:  c,
		logger: log.OrDiscard(logger).WithComponent(log.ComponentAggregate),
	}
}

// Aggregate returns the user's aggregate. A missing user record is
// core.ErrNotFound.
func (r *Reader) Aggregate(ctx context.Context, userID string) (core.ImpactAggregate, error) {
	if err := core.RequireUser(userID); err != nil {
		return core.ImpactAggregate{}, err
	}
	if r.cache != nil {
		if agg, ok := r.cache.Get(userID); ok {
			return agg, nil
		}
	}
	agg, err := r.store.GetAggregate(ctx, userID)
	if err != nil {
		return core.ImpactAggregate{}, fmt.Errorf("read aggregate: %w", err)
	}
	if r.cache != nil {
		r.cache.Set(userID, agg)
	}
	return agg, nil
}

// View reads the aggregate and reconciles it with localAnnualSum.
func (r *Reader) View(ctx context.Context, userID string, localAnnualSum float64) (View, error) {
	agg, err := r.Aggregate(ctx, userID)
	if err != nil {
		return View{}, err
	}
	return NewView(agg, localAnnualSum), nil
}

// SaveAggregate writes a recomputed aggregate through to the store.
func (r *Reader) SaveAggregate(ctx context.Context, userID string, agg core.ImpactAggregate) error {
	if err := r.store.SaveAggregate(ctx, userID, agg); err != nil {
		r.Invalidate(userID)
		return err
	}
	if r.cache != nil {
		r.cache.Set(userID, agg)
	}
	r.logger.DebugContext(ctx, "Aggregate stored",
		log.FieldUserID, userID, "impact_annual_estimated", agg.ImpactAnnualEstimated)
	return nil
}

// Invalidate drops the cached aggregate for userID.
func (r *Reader) Invalidate(userID string) {
	if r.cache != nil {
		r.cache.Delete(userID)
	}
}
