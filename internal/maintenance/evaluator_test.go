package maintenance

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldops/internal/model"
	"fieldops/internal/store"
)

func vehicles(t *testing.T, vs ...model.Vehicle) *store.Memory {
	t.Helper()
	s := store.NewMemory()
	for _, v := range vs {
		_, err := s.UpsertVehicle(context.Background(), v)
		require.NoError(t, err)
	}
	return s
}

func TestEvaluateThresholds(t *testing.T) {
	s := vehicles(t, model.Vehicle{ID: "V1", LastServiceHours: 1000})
	e := NewEvaluator(s, DefaultRules())
	ctx := context.Background()

	req, err := e.Evaluate(ctx, "V1", 1200)
	require.NoError(t, err)
	assert.Nil(t, req, "far from service")

	req, err = e.Evaluate(ctx, "V1", 1225)
	require.NoError(t, err)
	require.NotNil(t, req, "within a tenth of the interval")
	assert.Equal(t, model.AlertMaintenanceDue, req.Type)
	assert.Equal(t, model.SeverityWarning, req.Severity)
	assert.Equal(t, 1250.0, req.DueAtHours)

	req, err = e.Evaluate(ctx, "V1", 1250)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, model.AlertMaintenanceOverdue, req.Type)
	assert.Equal(t, model.SeverityCritical, req.Severity)
	assert.Equal(t, "V1", req.VehicleID)
}

func TestIntervalPrecedence(t *testing.T) {
	rules := DefaultRules()
	rules.TypeIntervals = map[string]float64{"combine": 100}
	e := NewEvaluator(nil, rules)

	assert.Equal(t, 250.0, e.IntervalFor(model.Vehicle{Type: "tractor"}))
	assert.Equal(t, 100.0, e.IntervalFor(model.Vehicle{Type: "combine"}))
	assert.Equal(t, 40.0, e.IntervalFor(model.Vehicle{Type: "combine", ServiceIntervalHours: 40}))
}

func TestEvaluateSkipsRetiredAndReportsMissing(t *testing.T) {
	s := vehicles(t, model.Vehicle{ID: "old", Status: model.VehicleRetired})
	e := NewEvaluator(s, DefaultRules())
	req, err := e.Evaluate(context.Background(), "old", 9999)
	require.NoError(t, err)
	assert.Nil(t, req)

	_, err = e.Evaluate(context.Background(), "ghost", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestParseRules(t *testing.T) {
	r, err := ParseRules([]byte("default_interval_hours: 300\ntype_intervals:\n  sprayer: 150\n"))
	require.NoError(t, err)
	assert.Equal(t, 300.0, r.DefaultIntervalHours)
	assert.Equal(t, 0.1, r.NearDueFraction, "unset fields keep defaults")
	assert.Equal(t, 150.0, r.TypeIntervals["sprayer"])

	_, err = ParseRules([]byte("default_interval_hours: 0\n"))
	assert.Error(t, err)
	_, err = ParseRules([]byte("near_due_fraction: 1.5\n"))
	assert.Error(t, err)
	_, err = ParseRules([]byte("type_intervals: [not, a, map]\n"))
	assert.Error(t, err)
}

func TestWatcherReloadsRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_interval_hours: 300\n"), 0o644))

	e := NewEvaluator(nil, DefaultRules())
	var logs bytes.Buffer
	w, err := NewWatcher(path, e, log.New(&logs, "", 0))
	require.NoError(t, err)
	assert.Equal(t, 300.0, e.Rules().DefaultIntervalHours)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte("default_interval_hours: 500\n"), 0o644))
	select {
	case <-w.Reloaded():
	case <-time.After(5 * time.Second):
		t.Fatal("rules were not reloaded")
	}
	assert.Eventually(t, func() bool { return e.Rules().DefaultIntervalHours == 500 }, 5*time.Second, 10*time.Millisecond)
}

func TestNewWatcherRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_interval_hours: -1\n"), 0o644))
	_, err := NewWatcher(path, NewEvaluator(nil, DefaultRules()), log.New(&bytes.Buffer{}, "", 0))
	assert.Error(t, err)
}
