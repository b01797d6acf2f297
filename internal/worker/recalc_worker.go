package worker

import (
	"context"
	"fmt"
	"time"

	"impact/internal/amqp"
	"impact/internal/log"
	"impact/internal/recalc"
)

// RecalcWorker turns queued jobs into recompute calls.
type RecalcWorker struct {
	rc     recalc.Recalculator
	sink   recalc.AggregateSink
	logger *log.Logger
}

// NewRecalcWorker creates a worker. sink may be nil when the endpoint
// persists the aggregate itself.
func NewRecalcWorker(rc recalc.Recalculator, sink recalc.AggregateSink, logger *log.Logger) *RecalcWorker {
	return &RecalcWorker{
		rc:     rc,
		sink:   sink,
		logger: log.OrDiscard(logger).WithComponent(log.ComponentWorker),
	}
}

// HandleRecalcJob processes a single job message from AMQP. A failed
// recompute is logged and acknowledged; only a failure to store the
// result asks for redelivery.
func (w *RecalcWorker) HandleRecalcJob(ctx context.Context, msg *amqp.RecalcJobMessage) error {
	fields := log.NewFields().
		WithOperation(log.OpRecalc).
		WithUser(msg.UserID).
		WithReason(string(msg.Reason))

	w.logger.InfoContext(ctx, "Processing recalc job",
		append(fields.ToSlice(), "queued_for", time.Since(msg.Timestamp).String())...)

	start := time.Now()
	agg, err := w.rc.Recalculate(ctx, msg.UserID, msg.Reason)
	fields = fields.WithDuration(time.Since(start))
	if err != nil {
		w.logger.WarnContext(ctx, "Recalculation failed", fields.WithError(err).ToSlice()...)
		return nil
	}

	if w.sink != nil {
		if err := w.sink.SaveAggregate(ctx, msg.UserID, agg); err != nil {
			return fmt.Errorf("store aggregate for %s: %w", msg.UserID, err)
		}
	}

	w.logger.InfoContext(ctx, "Recalculation completed",
		append(fields.ToSlice(), "impact_annual_estimated", agg.ImpactAnnualEstimated)...)
	return nil
}
