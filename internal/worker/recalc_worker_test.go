package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impact/internal/amqp"
	"impact/internal/core"
	"impact/internal/persistence/memory"
	"impact/internal/recalc"
)

func TestRecalcWorker_StoresAggregate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewWithUsers("u1")
	at := time.Now().UTC()
	var gotReason recalc.Reason
	rc := recalc.RecalculatorFunc(func(_ context.Context, uid string, r recalc.Reason) (core.ImpactAggregate, error) {
		gotReason = r
		return core.ImpactAggregate{ImpactAnnualEstimated: 360, LastRecalcAt: &at}, nil
	})

	w := NewRecalcWorker(rc, store, nil)
	require.NoError(t, w.HandleRecalcJob(ctx, amqp.NewRecalcJobMessage("u1", recalc.ReasonUpdate)))

	assert.Equal(t, recalc.ReasonUpdate, gotReason)
	a, err := store.GetAggregate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 360.0, a.ImpactAnnualEstimated)
}

func TestRecalcWorker_RecalcFailureIsAcked(t *testing.T) {
	rc := recalc.RecalculatorFunc(func(context.Context, string, recalc.Reason) (core.ImpactAggregate, error) {
		return core.ImpactAggregate{}, core.Recalculation(errors.New("503"))
	})
	w := NewRecalcWorker(rc, nil, nil)
	assert.NoError(t, w.HandleRecalcJob(context.Background(), amqp.NewRecalcJobMessage("u1", recalc.ReasonCreate)))
}

func TestRecalcWorker_SinkFailureRequeues(t *testing.T) {
	rc := recalc.RecalculatorFunc(func(context.Context, string, recalc.Reason) (core.ImpactAggregate, error) {
		return core.ImpactAggregate{ImpactAnnualEstimated: 1}, nil
	})
	// unknown user: the store refuses the write
	w := NewRecalcWorker(rc, memory.New(), nil)
	err := w.HandleRecalcJob(context.Background(), amqp.NewRecalcJobMessage("ghost", recalc.ReasonCreate))
	assert.ErrorIs(t, err, core.ErrNotFound)
}
