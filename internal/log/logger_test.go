package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impact/internal/core"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLogger_JSONCarriesComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Component: ComponentApp, Format: "json", Output: &buf}).
		WithComponent(ComponentRecalc)

	fields := NewFields().
		WithOperation(OpRecalc).
		WithUser("u1").
		WithReason("create").
		WithDuration(1500 * time.Millisecond).
		WithError(core.Recalculation(errors.New("boom")))
	l.Warn("recalculation failed", fields.ToSlice()...)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "recalc", rec[FieldComponent])
	assert.Equal(t, "u1", rec[FieldUserID])
	assert.Equal(t, "create", rec[FieldReason])
	assert.Equal(t, float64(1500), rec[FieldDuration])
	assert.Equal(t, "recalculation", rec[FieldErrorKind])
	assert.Equal(t, "recalculation failed", rec["msg"])
}

func TestLogFields_WithNilErrorAddsNothing(t *testing.T) {
	f := NewFields().WithError(nil)
	assert.Empty(t, f)
}

func TestDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))
	l := Discard().WithComponent(ComponentCLI)
	assert.Equal(t, ComponentCLI, l.Component())
	l.Info("dropped")
}
