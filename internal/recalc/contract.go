package recalc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"impact/internal/core"
)

// Request is the body sent to the recompute endpoint.
type Request struct {
	Source Reason `json:"source"`
}

// Response is the endpoint's reply. Anything but Success with Data counts
// as a failure.
type Response struct {
	Success bool   `json:"success"`
	Data    *Data  `json:"data,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Data struct {
	ImpactAnnualEstimated float64    `json:"impactAnnualEstimated"`
	ImpactAnnualVerified  float64    `json:"impactAnnualVerified"`
	ProofsVerifiedCount   int        `json:"proofsVerifiedCount"`
	LastImpactRecalcAt    *Timestamp `json:"lastImpactRecalcAt,omitempty"`
}

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// Timestamp decodes ISO-8601 times with or without a zone offset.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	for _, layout := range timestampLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

// Meta.Duration is in milliseconds.
type Meta struct {
	Duration int64 `json:"duration"`
}

func (d Data) Aggregate() core.ImpactAggregate {
	return core.ImpactAggregate{
		ImpactAnnualEstimated: d.ImpactAnnualEstimated,
		ImpactAnnualVerified:  d.ImpactAnnualVerified,
		ProofsVerifiedCount:   d.ProofsVerifiedCount,
		LastRecalcAt:          d.lastRecalcAt(),
	}
}

func (d Data) lastRecalcAt() *time.Time {
	if d.LastImpactRecalcAt == nil {
		return nil
	}
	t := d.LastImpactRecalcAt.Time
	return &t
}

// Recalculator performs one recompute round-trip for a user.
type Recalculator interface {
	Recalculate(ctx context.Context, userID string, reason Reason) (core.ImpactAggregate, error)
}

// RecalculatorFunc adapts a function to Recalculator.
type RecalculatorFunc func(ctx context.Context, userID string, reason Reason) (core.ImpactAggregate, error)

func (f RecalculatorFunc) Recalculate(ctx context.Context, userID string, reason Reason) (core.ImpactAggregate, error) {
	return f(ctx, userID, reason)
}

// Result reports the outcome of one job.
type Result struct {
	UserID    string
	Reason    Reason
	Aggregate core.ImpactAggregate
	Duration  time.Duration
	Err       error
}
