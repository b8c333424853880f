package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldops/internal/model"
	"fieldops/internal/store"
)

var testNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

type stubEvaluator struct {
	threshold float64
	calls     []float64
	err       error
}

func (s *stubEvaluator) Evaluate(ctx context.Context, vehicleID string, hours float64) (*model.AlertRequest, error) {
	s.calls = append(s.calls, hours)
	if s.err != nil {
		return nil, s.err
	}
	if hours < s.threshold {
		return nil, nil
	}
	return &model.AlertRequest{Type: model.AlertMaintenanceDue, VehicleID: vehicleID, Severity: model.SeverityWarning, Hours: hours, DueAtHours: s.threshold}, nil
}

type fixture struct {
	store  *store.Memory
	engine *Engine
	eval   *stubEvaluator
	logs   *bytes.Buffer
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	s := store.NewMemory()
	ctx := context.Background()
	_, err := s.UpsertVehicle(ctx, model.Vehicle{ID: "V1", CurrentHours: 100, CurrentMileage: 5000})
	require.NoError(t, err)
	_, err = s.UpsertVehicle(ctx, model.Vehicle{ID: "V2"})
	require.NoError(t, err)
	_, err = s.UpsertOperator(ctx, model.Operator{ID: "O1"})
	require.NoError(t, err)
	_, err = s.UpsertOperator(ctx, model.Operator{ID: "O2"})
	require.NoError(t, err)
	_, err = s.UpsertField(ctx, model.Field{ID: "F1"})
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	logger := log.New(logs, "", 0)
	eval := &stubEvaluator{threshold: 1000}
	coord := NewCoordinator(s, eval, s, 2, logger).WithBackoff(0)
	return &fixture{store: s, engine: NewEngine(s, s, coord, cfg, logger), eval: eval, logs: logs}
}

func (f *fixture) create(t *testing.T, d OperationDraft) model.Operation {
	t.Helper()
	if d.VehicleID == "" {
		d.VehicleID = "V1"
	}
	if d.OperatorID == "" {
		d.OperatorID = "O1"
	}
	if d.OperationType == "" {
		d.OperationType = "tillage"
	}
	if d.Date == "" {
		d.Date = "2024-06-01"
	}
	op, err := f.engine.Create(context.Background(), d)
	require.NoError(t, err)
	return op
}

func (f *fixture) active(t *testing.T, startHours float64) model.Operation {
	t.Helper()
	op := f.create(t, OperationDraft{StartHours: model.Float(startHours)})
	op, err := f.engine.Start(context.Background(), op.ID, StartInput{}, testNow)
	require.NoError(t, err)
	return op
}

func requireValidation(t *testing.T, err error, guard string) {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	assert.Equal(t, guard, ve.Guard)
}

func requireInvalidTransition(t *testing.T, err error, guard string) *InvalidTransitionError {
	t.Helper()
	var it *InvalidTransitionError
	require.True(t, errors.As(err, &it), "expected InvalidTransitionError, got %v", err)
	assert.Equal(t, guard, it.Guard)
	return it
}

func TestCreateStoresPlannedOperation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	op := f.create(t, OperationDraft{FieldID: "F1", StartTime: "08:00", EndTime: "10:00", StartHours: model.Float(100)})
	assert.NotEmpty(t, op.ID)
	assert.Equal(t, model.StatusPlanned, op.Status)
	assert.Equal(t, "F1", op.FieldID)

	got, err := f.engine.Get(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, op.ID, got.ID)
}

func TestCreateKeepsSuppliedID(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	op := f.create(t, OperationDraft{ID: "op-7"})
	assert.Equal(t, "op-7", op.ID)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		draft OperationDraft
		guard string
	}{
		{"missing vehicle", OperationDraft{OperatorID: "O1", OperationType: "tillage", Date: "2024-06-01"}, "vehicle_required"},
		{"missing operator", OperationDraft{VehicleID: "V1", OperationType: "tillage", Date: "2024-06-01"}, "operator_required"},
		{"short type", OperationDraft{VehicleID: "V1", OperatorID: "O1", OperationType: " x ", Date: "2024-06-01"}, "operation_type"},
		{"bad date", OperationDraft{VehicleID: "V1", OperatorID: "O1", OperationType: "tillage", Date: "06/01/2024"}, "date_format"},
		{"bad start time", OperationDraft{VehicleID: "V1", OperatorID: "O1", OperationType: "tillage", Date: "2024-06-01", StartTime: "8am"}, "start_time_format"},
		{"inverted window", OperationDraft{VehicleID: "V1", OperatorID: "O1", OperationType: "tillage", Date: "2024-06-01", StartTime: "10:00", EndTime: "09:00"}, "window_order"},
		{"negative hours", OperationDraft{VehicleID: "V1", OperatorID: "O1", OperationType: "tillage", Date: "2024-06-01", StartHours: model.Float(-1)}, "start_hours_plausible"},
		{"hours above ceiling", OperationDraft{VehicleID: "V1", OperatorID: "O1", OperationType: "tillage", Date: "2024-06-01", StartHours: model.Float(60000)}, "start_hours_plausible"},
		{"negative mileage", OperationDraft{VehicleID: "V1", OperatorID: "O1", OperationType: "tillage", Date: "2024-06-01", StartMileage: model.Float(-3)}, "start_mileage_plausible"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultConfig())
			_, err := f.engine.Create(context.Background(), tt.draft)
			requireValidation(t, err, tt.guard)
		})
	}
}

func TestCreateMissingReferences(t *testing.T) {
	tests := []struct {
		name  string
		draft OperationDraft
		kind  string
	}{
		{"vehicle", OperationDraft{VehicleID: "nope", OperatorID: "O1", OperationType: "tillage", Date: "2024-06-01"}, "vehicle"},
		{"operator", OperationDraft{VehicleID: "V1", OperatorID: "nope", OperationType: "tillage", Date: "2024-06-01"}, "operator"},
		{"field", OperationDraft{VehicleID: "V1", OperatorID: "O1", FieldID: "nope", OperationType: "tillage", Date: "2024-06-01"}, "field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultConfig())
			_, err := f.engine.Create(context.Background(), tt.draft)
			var nf *NotFoundError
			require.True(t, errors.As(err, &nf), "expected NotFoundError, got %v", err)
			assert.Equal(t, tt.kind, nf.Kind)
			assert.Equal(t, "nope", nf.ID)
		})
	}
}

func TestCreateDoesNotCheckConflictsByDefault(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.create(t, OperationDraft{StartTime: "09:00", EndTime: "11:00"})
	f.create(t, OperationDraft{StartTime: "10:30", EndTime: "12:00"})
}

func TestCreateEnforcesConflictsWhenConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnforceConflicts = true
	f := newFixture(t, cfg)
	first := f.create(t, OperationDraft{StartTime: "09:00", EndTime: "11:00"})

	_, err := f.engine.Create(context.Background(), OperationDraft{VehicleID: "V1", OperatorID: "O2", OperationType: "spraying", Date: "2024-06-01", StartTime: "10:30", EndTime: "12:00"})
	var ce *ConflictError
	require.True(t, errors.As(err, &ce), "expected ConflictError, got %v", err)
	assert.Equal(t, []string{first.ID}, ce.Conflicts.Vehicle)
	assert.Empty(t, ce.Conflicts.Operator)

	// the adjacent slot is free
	f.create(t, OperationDraft{OperatorID: "O2", StartTime: "11:00", EndTime: "12:00"})
}

// Create with startHours=100, start, complete at 108: vehicle hours become 108.
func TestScenarioCompleteUpdatesVehicleHours(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	op := f.active(t, 100)
	assert.Equal(t, model.StatusActive, op.Status)
	assert.Equal(t, "09:30", op.StartTime, "start time defaults to the request clock")

	res, err := f.engine.Complete(context.Background(), op.ID, CompletionInput{EndHours: model.Float(108), EndTime: "17:00", AreaCovered: model.Float(12)}, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.Operation.Status)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, []Effect{
		SetHoursEffect{VehicleID: "V1", Hours: 108},
		EvaluateMaintenanceEffect{VehicleID: "V1", Hours: 108},
	}, res.Effects)

	tel, err := f.store.GetVehicleTelemetry(context.Background(), "V1")
	require.NoError(t, err)
	assert.Equal(t, 108.0, tel.Hours)
	assert.Equal(t, []float64{108}, f.eval.calls)
}

// Completing with a 25 hour delta fails and leaves the operation active.
func TestScenarioCompleteRejectsLongShift(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	op := f.active(t, 100)

	_, err := f.engine.Complete(context.Background(), op.ID, CompletionInput{EndHours: model.Float(125)}, testNow)
	requireValidation(t, err, "hours_progression")

	got, err := f.engine.Get(context.Background(), op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Nil(t, got.EndHours)

	tel, _ := f.store.GetVehicleTelemetry(context.Background(), "V1")
	assert.Equal(t, 100.0, tel.Hours)
}

// A second booking of V1 overlapping a planned one is flagged by the checker.
func TestScenarioAvailabilityFlagsDoubleBooking(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	first := f.create(t, OperationDraft{StartTime: "09:00", EndTime: "11:00"})
	ids, err := f.engine.Availability().FindConflicts(context.Background(), model.ResourceVehicle, "V1", "2024-06-01", &Window{Start: "10:30", End: "12:00"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, ids)
}

// Completed operations older than the 30 day retention window are kept.
func TestScenarioDeleteRetention(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	completeOn := func(daysAgo int) model.Operation {
		day := testNow.AddDate(0, 0, -daysAgo)
		op := f.create(t, OperationDraft{Date: day.Format(model.DateLayout), StartHours: model.Float(100)})
		_, err := f.engine.Start(ctx, op.ID, StartInput{}, day)
		require.NoError(t, err)
		res, err := f.engine.Complete(ctx, op.ID, CompletionInput{EndHours: model.Float(104)}, day)
		require.NoError(t, err)
		return res.Operation
	}
	old := completeOn(45)
	recent := completeOn(10)
	justOutside := completeOn(31)
	boundary := completeOn(30)

	_, err := f.engine.Delete(ctx, old.ID, testNow)
	requireInvalidTransition(t, err, "retention_window")
	_, err = f.engine.Get(ctx, old.ID)
	require.NoError(t, err)

	_, err = f.engine.Delete(ctx, justOutside.ID, testNow)
	requireInvalidTransition(t, err, "retention_window")

	_, err = f.engine.Delete(ctx, boundary.ID, testNow)
	require.NoError(t, err, "exactly 30 days ago is still inside the window")

	deleted, err := f.engine.Delete(ctx, recent.ID, testNow)
	require.NoError(t, err)
	assert.Equal(t, recent.ID, deleted.ID)
	_, err = f.engine.Get(ctx, recent.ID)
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestDeleteRefusesActiveOperation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	op := f.active(t, 100)
	_, err := f.engine.Delete(context.Background(), op.ID, testNow)
	requireInvalidTransition(t, err, "status_not_active")
}

func TestDeletePlannedAndCancelled(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	planned := f.create(t, OperationDraft{})
	_, err := f.engine.Delete(ctx, planned.ID, testNow)
	require.NoError(t, err)

	cancelled := f.create(t, OperationDraft{Date: "2023-01-01"})
	_, err = f.engine.Cancel(ctx, cancelled.ID, testNow)
	require.NoError(t, err)
	_, err = f.engine.Delete(ctx, cancelled.ID, testNow)
	require.NoError(t, err, "retention only protects completed operations")
}

func TestCompleteSucceedsIffHoursAdvanceWithinShift(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		s := 10 + float64(rng.Intn(40000)) + rng.Float64()
		e := s + (rng.Float64()*30 - 6)
		op := f.active(t, s)
		_, err := f.engine.Complete(ctx, op.ID, CompletionInput{EndHours: model.Float(e)}, testNow)
		want := e > s && e-s <= 18
		if want {
			assert.NoError(t, err, "s=%v e=%v", s, e)
		} else {
			requireValidation(t, err, "hours_progression")
		}
	}
}

func TestCompleteGuards(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	planned := f.create(t, OperationDraft{StartHours: model.Float(100)})
	_, err := f.engine.Complete(ctx, planned.ID, CompletionInput{EndHours: model.Float(101)}, testNow)
	it := requireInvalidTransition(t, err, "status_active")
	assert.Equal(t, model.StatusPlanned, it.From)
	assert.Contains(t, err.Error(), "operation not in active state")

	op := f.active(t, 100)
	_, err = f.engine.Complete(ctx, op.ID, CompletionInput{}, testNow)
	requireValidation(t, err, "end_hours_present")

	_, err = f.engine.Complete(ctx, op.ID, CompletionInput{EndHours: model.Float(100)}, testNow)
	requireValidation(t, err, "hours_progression")

	_, err = f.engine.Complete(ctx, op.ID, CompletionInput{EndHours: model.Float(104), EndTime: "09:00"}, testNow)
	requireValidation(t, err, "end_time_after_start")

	_, err = f.engine.Complete(ctx, op.ID, CompletionInput{EndHours: model.Float(104), AreaCovered: model.Float(-2)}, testNow)
	requireValidation(t, err, "area_covered_plausible")
}

func TestCompleteMileage(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	start := func() model.Operation {
		op := f.create(t, OperationDraft{StartHours: model.Float(100)})
		op, err := f.engine.Start(ctx, op.ID, StartInput{StartMileage: model.Float(5000)}, testNow)
		require.NoError(t, err)
		return op
	}

	op := start()
	_, err := f.engine.Complete(ctx, op.ID, CompletionInput{EndHours: model.Float(104), EndMileage: model.Float(5000)}, testNow)
	requireValidation(t, err, "mileage_progression")
	_, err = f.engine.Complete(ctx, op.ID, CompletionInput{EndHours: model.Float(104), EndMileage: model.Float(4990)}, testNow)
	requireValidation(t, err, "mileage_progression")

	res, err := f.engine.Complete(ctx, op.ID, CompletionInput{EndHours: model.Float(104), EndMileage: model.Float(5600)}, testNow)
	require.NoError(t, err, "a jump over 500 only warns")
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnMileageJump, res.Warnings[0].Code)
	assert.Equal(t, model.StatusCompleted, res.Operation.Status)

	tel, _ := f.store.GetVehicleTelemetry(ctx, "V1")
	assert.Equal(t, 5600.0, tel.Mileage)
	assert.Equal(t, 104.0, tel.Hours)
}

func TestStartGuards(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	noHours := f.create(t, OperationDraft{})
	_, err := f.engine.Start(ctx, noHours.ID, StartInput{}, testNow)
	requireValidation(t, err, "start_hours_present")

	_, err = f.engine.Start(ctx, noHours.ID, StartInput{StartHours: model.Float(50001)}, testNow)
	requireValidation(t, err, "start_hours_plausible")

	far := f.create(t, OperationDraft{Date: "2024-06-09", StartHours: model.Float(1)})
	_, err = f.engine.Start(ctx, far.ID, StartInput{}, testNow)
	it := requireInvalidTransition(t, err, "date_horizon")
	assert.Equal(t, model.StatusPlanned, it.From)

	edge := f.create(t, OperationDraft{Date: "2024-06-08", StartHours: model.Float(1)})
	_, err = f.engine.Start(ctx, edge.ID, StartInput{StartTime: "07:15"}, testNow)
	require.NoError(t, err, "seven days ahead is still inside the horizon")

	got, _ := f.engine.Get(ctx, edge.ID)
	assert.Equal(t, "07:15", got.StartTime)

	windowed := f.create(t, OperationDraft{StartTime: "13:00", EndTime: "14:00", StartHours: model.Float(1)})
	_, err = f.engine.Start(ctx, windowed.ID, StartInput{StartTime: "15:00"}, testNow)
	requireValidation(t, err, "window_order")
	got, _ = f.engine.Get(ctx, windowed.ID)
	assert.Equal(t, model.StatusPlanned, got.Status)
	assert.Equal(t, "13:00", got.StartTime)

	_, err = f.engine.Start(ctx, edge.ID, StartInput{}, testNow)
	requireInvalidTransition(t, err, "status_planned")
}

func TestStartSuppliesHours(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	op := f.create(t, OperationDraft{})
	started, err := f.engine.Start(context.Background(), op.ID, StartInput{StartHours: model.Float(42)}, testNow)
	require.NoError(t, err)
	require.NotNil(t, started.StartHours)
	assert.Equal(t, 42.0, *started.StartHours)
}

func TestOnlyTableEdgesAreTaken(t *testing.T) {
	ctx := context.Background()
	type action func(e *Engine, id string) error
	actions := map[Event]action{
		EventStart: func(e *Engine, id string) error {
			_, err := e.Start(ctx, id, StartInput{StartHours: model.Float(10)}, testNow)
			return err
		},
		EventComplete: func(e *Engine, id string) error {
			_, err := e.Complete(ctx, id, CompletionInput{EndHours: model.Float(12)}, testNow)
			return err
		},
		EventCancel: func(e *Engine, id string) error {
			_, err := e.Cancel(ctx, id, testNow)
			return err
		},
	}
	reach := map[model.OperationStatus][]Event{
		model.StatusPlanned:   nil,
		model.StatusActive:    {EventStart},
		model.StatusCompleted: {EventStart, EventComplete},
		model.StatusCancelled: {EventCancel},
	}
	for status, path := range reach {
		for ev, act := range actions {
			t.Run(string(status)+"/"+string(ev), func(t *testing.T) {
				f := newFixture(t, DefaultConfig())
				op := f.create(t, OperationDraft{StartHours: model.Float(10)})
				for _, step := range path {
					require.NoError(t, actions[step](f.engine, op.ID))
				}
				before, _ := f.engine.Get(ctx, op.ID)
				require.Equal(t, status, before.Status)

				err := act(f.engine, op.ID)
				tr, allowed := TransitionFor(status, ev)
				after, _ := f.engine.Get(ctx, op.ID)
				if allowed {
					require.NoError(t, err)
					assert.Equal(t, tr.To, after.Status)
					return
				}
				var it *InvalidTransitionError
				require.True(t, errors.As(err, &it), "expected InvalidTransitionError, got %v", err)
				assert.Equal(t, status, after.Status, "state must be unchanged")
			})
		}
	}
}

func TestCancelTwice(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	op := f.create(t, OperationDraft{})
	cancelled, err := f.engine.Cancel(context.Background(), op.ID, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	_, err = f.engine.Cancel(context.Background(), op.ID, testNow)
	it := requireInvalidTransition(t, err, "status_cancellable")
	assert.Equal(t, model.StatusCancelled, it.From)
}

func TestConcurrentStartHasOneWinner(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	op := f.create(t, OperationDraft{StartHours: model.Float(100)})

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Start(context.Background(), op.ID, StartInput{}, testNow)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		it := requireInvalidTransition(t, err, "status_planned")
		assert.Equal(t, model.StatusActive, it.From)
	}
	assert.Equal(t, 1, wins)
}

func TestRetriedCompleteDoesNotRepeatEffects(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	op := f.active(t, 100)
	_, err := f.engine.Complete(context.Background(), op.ID, CompletionInput{EndHours: model.Float(105)}, testNow)
	require.NoError(t, err)
	_, err = f.engine.Complete(context.Background(), op.ID, CompletionInput{EndHours: model.Float(105)}, testNow)
	requireInvalidTransition(t, err, "status_active")
	assert.Len(t, f.eval.calls, 1)
}

func TestUpdatePlannedOnly(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	op := f.create(t, OperationDraft{StartTime: "08:00", EndTime: "10:00"})

	notes := "bring the wide harrow"
	end := "11:00"
	updated, err := f.engine.Update(ctx, op.ID, OperationPatch{Notes: &notes, EndTime: &end})
	require.NoError(t, err)
	assert.Equal(t, notes, updated.Notes)
	assert.Equal(t, "11:00", updated.EndTime)
	assert.Equal(t, model.StatusPlanned, updated.Status)

	bad := "07:00"
	_, err = f.engine.Update(ctx, op.ID, OperationPatch{EndTime: &bad})
	requireValidation(t, err, "window_order")

	missing := "V9"
	_, err = f.engine.Update(ctx, op.ID, OperationPatch{VehicleID: &missing})
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))

	_, err = f.engine.Cancel(ctx, op.ID, testNow)
	require.NoError(t, err)
	_, err = f.engine.Update(ctx, op.ID, OperationPatch{Notes: &notes})
	requireInvalidTransition(t, err, "status_planned")
}

func TestUpdateExcludesItselfFromConflicts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnforceConflicts = true
	f := newFixture(t, cfg)
	op := f.create(t, OperationDraft{StartTime: "08:00", EndTime: "10:00"})
	end := "10:30"
	_, err := f.engine.Update(context.Background(), op.ID, OperationPatch{EndTime: &end})
	require.NoError(t, err)
}

func TestUnknownOperation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	_, err := f.engine.Start(ctx, "ghost", StartInput{}, testNow)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "operation", nf.Kind)
	_, err = f.engine.Complete(ctx, "ghost", CompletionInput{}, testNow)
	assert.True(t, errors.As(err, &nf))
	_, err = f.engine.Cancel(ctx, "ghost", testNow)
	assert.True(t, errors.As(err, &nf))
	_, err = f.engine.Delete(ctx, "ghost", testNow)
	assert.True(t, errors.As(err, &nf))
}

func TestListFilters(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.create(t, OperationDraft{})
	f.create(t, OperationDraft{VehicleID: "V2"})
	ops, err := f.engine.List(context.Background(), model.OperationFilter{VehicleID: "V2"})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "V2", ops[0].VehicleID)
}
