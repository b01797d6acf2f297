package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impact/internal/cache"
	"impact/internal/core"
	"impact/internal/impact"
	"impact/internal/local"
	"impact/internal/persistence/memory"
	"impact/internal/recalc"
	"impact/internal/services"
)

type recordingScheduler struct {
	mu      sync.Mutex
	reasons []recalc.Reason
}

func (s *recordingScheduler) Schedule(_ context.Context, _ string, reason recalc.Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons = append(s.reasons, reason)
	return nil
}

type testSession struct {
	*Session
	store *memory.Store
	local *local.Store
	sched *recordingScheduler
	out   *bytes.Buffer
}

func newTestSession(t *testing.T) *testSession {
	t.Helper()
	store := memory.NewWithUsers("u1")
	rc := recalc.RecalculatorFunc(func(ctx context.Context, userID string, _ recalc.Reason) (core.ImpactAggregate, error) {
		events, err := store.ListEvents(ctx, userID, core.ListQuery{Limit: core.MaxListLimit})
		if err != nil {
			return core.ImpactAggregate{}, err
		}
		now := time.Now().UTC()
		return core.ImpactAggregate{ImpactAnnualEstimated: core.AnnualSum(events), LastRecalcAt: &now}, nil
	})
	sched := &recordingScheduler{}
	reader := impact.NewReader(store, cache.NewLRU[core.ImpactAggregate](8, time.Minute), nil)
	ls := local.NewStore(services.NewSavingsService(store, sched, nil), "u1", nil)

	s := NewSession(SessionConfig{
		Store:      ls,
		Reader:     reader,
		Monitor:    impact.NewMonitor("u1", 6*time.Hour, sched, rc, impact.WithSink(reader)),
		UndoWindow: time.Minute,
	})
	out := &bytes.Buffer{}
	s.out = out
	t.Cleanup(s.cancelUndoTimer)
	return &testSession{Session: s, store: store, local: ls, sched: sched, out: out}
}

func (ts *testSession) exec(t *testing.T, line string) {
	t.Helper()
	quit, err := ts.Execute(context.Background(), line)
	require.NoError(t, err, line)
	require.False(t, quit)
}

func TestSession_AddListImpact(t *testing.T) {
	ts := newTestSession(t)

	ts.exec(t, "add 10 month Streaming service")
	assert.Contains(t, ts.out.String(), "Streaming service (120 per year)")

	ts.out.Reset()
	ts.exec(t, "list")
	assert.Contains(t, ts.out.String(), "Streaming service")
	assert.Contains(t, ts.out.String(), "1 savings, 120 per year")

	ts.out.Reset()
	ts.exec(t, "impact")
	assert.Contains(t, ts.out.String(), "a recompute was requested")
	assert.Contains(t, ts.out.String(), "Yearly impact: 120")
	assert.Contains(t, ts.out.String(), "not computed by the server yet")
	assert.Equal(t, []recalc.Reason{recalc.ReasonCreate, recalc.ReasonOnOpen}, ts.sched.reasons)

	ts.out.Reset()
	ts.exec(t, "impact")
	assert.NotContains(t, ts.out.String(), "a recompute was requested")
}

func TestSession_EditGoesThroughWhitelist(t *testing.T) {
	ts := newTestSession(t)
	ts.exec(t, "add 10 month Gym")
	id := ts.local.Events()[0].ID

	ts.exec(t, `edit `+id[:6]+` amount=20 title="Gym pass" verified=true`)

	got := ts.local.Events()[0]
	assert.Equal(t, 20.0, got.Amount)
	assert.Equal(t, "Gym pass", got.Title)
	assert.False(t, got.Verified)
	assert.Equal(t, 240.0, ts.local.AnnualSum())

	_, err := ts.Execute(context.Background(), "edit "+id[:6]+" amount=-5")
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, 20.0, ts.local.Events()[0].Amount)
}

func TestSession_DeleteAndUndo(t *testing.T) {
	ctx := context.Background()
	ts := newTestSession(t)
	ts.exec(t, "add 10 month Gym")
	e := ts.local.Events()[0]

	ts.exec(t, "delete "+e.ID)
	assert.Empty(t, ts.local.Events())
	assert.Contains(t, ts.out.String(), "Type undo within 1m0s")

	ts.exec(t, "undo")
	require.Len(t, ts.local.Events(), 1)
	assert.Equal(t, e.ID, ts.local.Events()[0].ID)
	stored, err := ts.store.GetEvent(ctx, "u1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, stored.Amount)

	_, err = ts.Execute(ctx, "undo")
	assert.ErrorIs(t, err, local.ErrNothingToUndo)
}

func TestSession_UndoAfterWindow(t *testing.T) {
	ts := newTestSession(t)
	ts.exec(t, "add 10 year Gym")
	ts.exec(t, "delete "+ts.local.Events()[0].ID)

	ts.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err := ts.Execute(context.Background(), "undo")
	assert.ErrorIs(t, err, local.ErrNothingToUndo)
	assert.Equal(t, local.UndoPurged, ts.local.Undo().State())
}

func TestSession_Dismiss(t *testing.T) {
	ts := newTestSession(t)
	ts.exec(t, "add 10 year Gym")
	ts.exec(t, "delete "+ts.local.Events()[0].ID)
	ts.exec(t, "dismiss")
	assert.Contains(t, ts.out.String(), "Undo dismissed.")
	assert.Equal(t, local.UndoPurged, ts.local.Undo().State())
}

func TestSession_Recalc(t *testing.T) {
	ctx := context.Background()
	ts := newTestSession(t)
	ts.exec(t, "add 10 month Gym")

	ts.out.Reset()
	ts.exec(t, "recalc")
	assert.Contains(t, ts.out.String(), "Yearly impact: 120")
	assert.Contains(t, ts.out.String(), "last computed")

	agg, err := ts.store.GetAggregate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 120.0, agg.ImpactAnnualEstimated)
}

func TestSession_BadInput(t *testing.T) {
	ctx := context.Background()
	ts := newTestSession(t)

	for _, line := range []string{"frobnicate", "add 10", "edit", "delete", "edit abc title"} {
		_, err := ts.Execute(ctx, line)
		assert.Error(t, err, line)
	}

	_, err := ts.Execute(ctx, "add 0 month Nothing")
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = ts.Execute(ctx, "add 5 week Nothing")
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = ts.Execute(ctx, "delete nope")
	assert.ErrorIs(t, err, core.ErrNotFound)

	quit, err := ts.Execute(ctx, "quit")
	assert.NoError(t, err)
	assert.True(t, quit)
}

func TestSession_Run(t *testing.T) {
	ts := newTestSession(t)
	var out bytes.Buffer

	err := ts.Run(context.Background(), strings.NewReader("help\nadd 5 year Bike\nlist\nquit\nlist\n"), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Yearly impact: 0")
	assert.Contains(t, out.String(), "Commands:")
	assert.Contains(t, out.String(), "1 savings, 5 per year")
}

func TestSession_RunStopsAtEOF(t *testing.T) {
	ts := newTestSession(t)
	var out bytes.Buffer
	require.NoError(t, ts.Run(context.Background(), strings.NewReader("list"), &out))
	assert.Contains(t, out.String(), "No savings yet.")
}

func TestParseAssignments(t *testing.T) {
	tests := []struct {
		in      string
		want    map[string]any
		wantErr bool
	}{
		{in: "amount=20", want: map[string]any{"amount": "20"}},
		{in: `title="Gym pass" period=year`, want: map[string]any{"title": "Gym pass", "period": "year"}},
		{in: "Amount=1,5", want: map[string]any{"amount": "1,5"}},
		{in: "title", wantErr: true},
		{in: `title="open`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAssignments(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
