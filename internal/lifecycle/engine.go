// Package lifecycle is the operation state machine: named guards per
// transition, progression and availability checks, and the effects a
// completed operation triggers.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldops/internal/metrics"
	"fieldops/internal/model"
	"fieldops/internal/store"
)

// OperationRepository persists operations. Update and Delete are
// compare-and-swap on status and return store.ErrStatusChanged on a lost race.
type OperationRepository interface {
	OperationSource
	InsertOperation(ctx context.Context, op model.Operation) (model.Operation, error)
	GetOperation(ctx context.Context, id string) (model.Operation, error)
	UpdateOperation(ctx context.Context, op model.Operation, expected model.OperationStatus) (model.Operation, error)
	DeleteOperation(ctx context.Context, id string, expected model.OperationStatus) error
	ListOperations(ctx context.Context, f model.OperationFilter) ([]model.Operation, error)
}

// ResourceCatalog answers existence questions and owns vehicle telemetry.
type ResourceCatalog interface {
	TelemetryWriter
	VehicleExists(ctx context.Context, id string) (bool, error)
	OperatorExists(ctx context.Context, id string) (bool, error)
	FieldExists(ctx context.Context, id string) (bool, error)
}

// Config holds the engine's tunable rules.
type Config struct {
	StartHorizonDays    int
	DeleteRetentionDays int
	MaxShiftHours       float64
	// EnforceConflicts turns double-booking into a ConflictError on create, update and start.
	EnforceConflicts bool
}

func DefaultConfig() Config {
	return Config{StartHorizonDays: 7, DeleteRetentionDays: 30, MaxShiftHours: MaxShiftHours}
}

// OperationDraft is the input to Create.
type OperationDraft struct {
	ID            string   `json:"id,omitempty"`
	VehicleID     string   `json:"vehicleId"`
	OperatorID    string   `json:"operatorId"`
	FieldID       string   `json:"fieldId,omitempty"`
	OperationType string   `json:"operationType"`
	Date          string   `json:"date"`
	StartTime     string   `json:"startTime,omitempty"`
	EndTime       string   `json:"endTime,omitempty"`
	StartHours    *float64 `json:"startHours,omitempty"`
	StartMileage  *float64 `json:"startMileage,omitempty"`
	Weather       string   `json:"weather,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// OperationPatch edits a planned operation. Nil fields are left unchanged.
type OperationPatch struct {
	VehicleID     *string  `json:"vehicleId,omitempty"`
	OperatorID    *string  `json:"operatorId,omitempty"`
	FieldID       *string  `json:"fieldId,omitempty"`
	OperationType *string  `json:"operationType,omitempty"`
	Date          *string  `json:"date,omitempty"`
	StartTime     *string  `json:"startTime,omitempty"`
	EndTime       *string  `json:"endTime,omitempty"`
	StartHours    *float64 `json:"startHours,omitempty"`
	StartMileage  *float64 `json:"startMileage,omitempty"`
	Weather       *string  `json:"weather,omitempty"`
	Notes         *string  `json:"notes,omitempty"`
}

// StartInput carries readings taken when work begins. Supplied values override stored ones.
type StartInput struct {
	StartTime    string   `json:"startTime,omitempty"`
	StartHours   *float64 `json:"startHours,omitempty"`
	StartMileage *float64 `json:"startMileage,omitempty"`
}

// CompletionInput carries readings and outcome recorded when work ends.
type CompletionInput struct {
	EndTime     string   `json:"endTime,omitempty"`
	EndHours    *float64 `json:"endHours,omitempty"`
	EndMileage  *float64 `json:"endMileage,omitempty"`
	AreaCovered *float64 `json:"areaCovered,omitempty"`
	Weather     string   `json:"weather,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// CompletionResult is a committed completion plus what its side effects did.
type CompletionResult struct {
	Operation model.Operation `json:"operation"`
	Effects   []Effect        `json:"-"`
	Warnings  []Warning       `json:"warnings"`
	Alert     *model.Alert    `json:"alert,omitempty"`
	// AlertCreated is false when Alert is an already-active duplicate.
	AlertCreated bool `json:"-"`
}

// Engine is the operation lifecycle state machine.
type Engine struct {
	ops          OperationRepository
	catalog      ResourceCatalog
	availability *AvailabilityChecker
	coordinator  *Coordinator
	cfg          Config
	log          *log.Logger
}

// NewEngine builds an engine. coordinator may be nil, in which case completion
// effects are returned but not executed.
func NewEngine(ops OperationRepository, catalog ResourceCatalog, coordinator *Coordinator, cfg Config, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Engine{
		ops:          ops,
		catalog:      catalog,
		availability: NewAvailabilityChecker(ops),
		coordinator:  coordinator,
		cfg:          cfg,
		log:          logger,
	}
}

// Availability exposes the conflict checker for explicit scheduling queries.
func (e *Engine) Availability() *AvailabilityChecker { return e.availability }

// Config returns the engine's rules.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Get(ctx context.Context, id string) (model.Operation, error) {
	return e.load(ctx, id)
}

func (e *Engine) List(ctx context.Context, f model.OperationFilter) ([]model.Operation, error) {
	return e.ops.ListOperations(ctx, f)
}

// Create validates a draft, resolves its references and stores it as planned.
func (e *Engine) Create(ctx context.Context, d OperationDraft) (op model.Operation, err error) {
	defer func() { observe("create", err) }()
	op = model.Operation{
		ID:            strings.TrimSpace(d.ID),
		VehicleID:     strings.TrimSpace(d.VehicleID),
		OperatorID:    strings.TrimSpace(d.OperatorID),
		FieldID:       strings.TrimSpace(d.FieldID),
		OperationType: strings.TrimSpace(d.OperationType),
		Date:          d.Date,
		StartTime:     d.StartTime,
		EndTime:       d.EndTime,
		StartHours:    d.StartHours,
		StartMileage:  d.StartMileage,
		Weather:       d.Weather,
		Notes:         d.Notes,
		Status:        model.StatusPlanned,
	}
	if err := runGuards(shapeGuards, &GuardContext{Op: op, Config: e.cfg}); err != nil {
		return model.Operation{}, err
	}
	if err := e.resolveReferences(ctx, op); err != nil {
		return model.Operation{}, err
	}
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if err := e.enforceConflicts(ctx, op); err != nil {
		return model.Operation{}, err
	}
	created, err := e.ops.InsertOperation(ctx, op)
	if err != nil {
		return model.Operation{}, fmt.Errorf("insert operation: %w", err)
	}
	e.log.Printf("lifecycle: operation %s planned for vehicle %s on %s", created.ID, created.VehicleID, created.Date)
	return created, nil
}

// Update edits a planned operation. Status is never touched.
func (e *Engine) Update(ctx context.Context, id string, p OperationPatch) (op model.Operation, err error) {
	defer func() { observe(string(EventUpdate), err) }()
	cur, err := e.load(ctx, id)
	if err != nil {
		return model.Operation{}, err
	}
	op = applyPatch(cur, p)
	if err := runGuards(updateGuards, &GuardContext{Op: op, Event: EventUpdate, Config: e.cfg}); err != nil {
		return model.Operation{}, err
	}
	if err := e.resolveReferences(ctx, op); err != nil {
		return model.Operation{}, err
	}
	if err := e.enforceConflicts(ctx, op); err != nil {
		return model.Operation{}, err
	}
	return e.commit(ctx, op, cur.Status, EventUpdate, "status_planned")
}

// Start moves a planned operation to active.
func (e *Engine) Start(ctx context.Context, id string, in StartInput, now time.Time) (op model.Operation, err error) {
	defer func() { observe(string(EventStart), err) }()
	cur, err := e.load(ctx, id)
	if err != nil {
		return model.Operation{}, err
	}
	op = cur
	if in.StartTime != "" {
		op.StartTime = in.StartTime
	}
	if in.StartHours != nil {
		op.StartHours = in.StartHours
	}
	if in.StartMileage != nil {
		op.StartMileage = in.StartMileage
	}
	if err := runGuards(startGuards, &GuardContext{Op: op, Event: EventStart, Now: now, Config: e.cfg}); err != nil {
		return model.Operation{}, err
	}
	if op.StartTime == "" {
		op.StartTime = now.Format(model.ClockLayout)
	}
	if err := e.enforceConflicts(ctx, op); err != nil {
		return model.Operation{}, err
	}
	op.Status = model.StatusActive
	return e.commit(ctx, op, cur.Status, EventStart, "status_planned")
}

// Complete moves an active operation to completed, then runs its effects.
// Effect failures are returned as warnings; the completion stands.
func (e *Engine) Complete(ctx context.Context, id string, in CompletionInput, now time.Time) (res CompletionResult, err error) {
	defer func() { observe(string(EventComplete), err) }()
	cur, err := e.load(ctx, id)
	if err != nil {
		return CompletionResult{}, err
	}
	op := cur
	if in.EndTime != "" {
		op.EndTime = in.EndTime
	}
	if in.EndHours != nil {
		op.EndHours = in.EndHours
	}
	if in.EndMileage != nil {
		op.EndMileage = in.EndMileage
	}
	if in.AreaCovered != nil {
		op.AreaCovered = in.AreaCovered
	}
	if in.Weather != "" {
		op.Weather = in.Weather
	}
	if in.Notes != "" {
		op.Notes = in.Notes
	}
	gc := &GuardContext{Op: op, Event: EventComplete, Now: now, Config: e.cfg}
	if err := runGuards(completeGuards, gc); err != nil {
		return CompletionResult{}, err
	}
	op.Status = model.StatusCompleted
	done, err := e.commit(ctx, op, cur.Status, EventComplete, "status_active")
	if err != nil {
		return CompletionResult{}, err
	}
	res = CompletionResult{Operation: done, Effects: completionEffects(done), Warnings: gc.Warnings}
	if e.coordinator != nil {
		out := e.coordinator.Run(ctx, res.Effects)
		res.Warnings = append(res.Warnings, out.Warnings...)
		res.Alert = out.Alert
		res.AlertCreated = out.AlertCreated
	}
	if res.Warnings == nil {
		res.Warnings = []Warning{}
	}
	for _, w := range res.Warnings {
		e.log.Printf("lifecycle: operation %s completed with warning %s: %s", done.ID, w.Code, w.Message)
	}
	return res, nil
}

// Cancel moves a planned or active operation to cancelled.
func (e *Engine) Cancel(ctx context.Context, id string, now time.Time) (op model.Operation, err error) {
	defer func() { observe(string(EventCancel), err) }()
	cur, err := e.load(ctx, id)
	if err != nil {
		return model.Operation{}, err
	}
	if err := runGuards(cancelGuards, &GuardContext{Op: cur, Event: EventCancel, Now: now, Config: e.cfg}); err != nil {
		return model.Operation{}, err
	}
	op = cur
	op.Status = model.StatusCancelled
	return e.commit(ctx, op, cur.Status, EventCancel, "status_cancellable")
}

// Delete removes an operation that is not active and, if completed, is
// still inside the retention window. It returns the removed record.
func (e *Engine) Delete(ctx context.Context, id string, now time.Time) (op model.Operation, err error) {
	defer func() { observe(string(EventDelete), err) }()
	cur, err := e.load(ctx, id)
	if err != nil {
		return model.Operation{}, err
	}
	if err := runGuards(deleteGuards, &GuardContext{Op: cur, Event: EventDelete, Now: now, Config: e.cfg}); err != nil {
		return model.Operation{}, err
	}
	if err := e.ops.DeleteOperation(ctx, id, cur.Status); err != nil {
		return model.Operation{}, e.casError(ctx, err, id, cur.Status, EventDelete, "status_not_active")
	}
	e.log.Printf("lifecycle: operation %s deleted (was %s)", id, cur.Status)
	return cur, nil
}

func (e *Engine) load(ctx context.Context, id string) (model.Operation, error) {
	op, err := e.ops.GetOperation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Operation{}, &NotFoundError{Kind: "operation", ID: id}
	}
	if err != nil {
		return model.Operation{}, fmt.Errorf("load operation %s: %w", id, err)
	}
	return op, nil
}

// commit writes op if the stored status still equals expected.
func (e *Engine) commit(ctx context.Context, op model.Operation, expected model.OperationStatus, ev Event, guard string) (model.Operation, error) {
	saved, err := e.ops.UpdateOperation(ctx, op, expected)
	if err != nil {
		return model.Operation{}, e.casError(ctx, err, op.ID, expected, ev, guard)
	}
	if saved.Status != expected {
		e.log.Printf("lifecycle: operation %s %s -> %s", saved.ID, expected, saved.Status)
	}
	return saved, nil
}

// casError maps a lost compare-and-swap to InvalidTransitionError naming the
// status the winner left behind.
func (e *Engine) casError(ctx context.Context, err error, id string, expected model.OperationStatus, ev Event, guard string) error {
	switch {
	case errors.Is(err, store.ErrStatusChanged):
		observed := expected
		if cur, gerr := e.ops.GetOperation(ctx, id); gerr == nil {
			observed = cur.Status
		}
		return &InvalidTransitionError{
			Guard:      guard,
			Transition: ev,
			From:       observed,
			Reason:     fmt.Sprintf("operation changed concurrently from %s to %s", expected, observed),
		}
	case errors.Is(err, store.ErrNotFound):
		return &NotFoundError{Kind: "operation", ID: id}
	}
	return fmt.Errorf("%s operation %s: %w", ev, id, err)
}

func (e *Engine) resolveReferences(ctx context.Context, op model.Operation) error {
	checks := []struct {
		kind   string
		id     string
		exists func(context.Context, string) (bool, error)
	}{
		{"vehicle", op.VehicleID, e.catalog.VehicleExists},
		{"operator", op.OperatorID, e.catalog.OperatorExists},
		{"field", op.FieldID, e.catalog.FieldExists},
	}
	for _, c := range checks {
		if c.id == "" {
			continue
		}
		ok, err := c.exists(ctx, c.id)
		if err != nil {
			return fmt.Errorf("lookup %s %s: %w", c.kind, c.id, err)
		}
		if !ok {
			return &NotFoundError{Kind: c.kind, ID: c.id}
		}
	}
	return nil
}

func (e *Engine) enforceConflicts(ctx context.Context, op model.Operation) error {
	if !e.cfg.EnforceConflicts {
		return nil
	}
	report, err := e.availability.CheckOperation(ctx, op)
	if err != nil {
		return fmt.Errorf("availability check: %w", err)
	}
	if !report.Empty() {
		return &ConflictError{Conflicts: report}
	}
	return nil
}

func applyPatch(op model.Operation, p OperationPatch) model.Operation {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&op.VehicleID, p.VehicleID)
	set(&op.OperatorID, p.OperatorID)
	set(&op.FieldID, p.FieldID)
	set(&op.OperationType, p.OperationType)
	set(&op.Date, p.Date)
	set(&op.StartTime, p.StartTime)
	set(&op.EndTime, p.EndTime)
	set(&op.Weather, p.Weather)
	set(&op.Notes, p.Notes)
	if p.StartHours != nil {
		op.StartHours = p.StartHours
	}
	if p.StartMileage != nil {
		op.StartMileage = p.StartMileage
	}
	return op
}

// observe records a transition outcome by error class.
func observe(transition string, err error) {
	result := "ok"
	var nf *NotFoundError
	var ve *ValidationError
	var it *InvalidTransitionError
	var ce *ConflictError
	switch {
	case err == nil:
	case errors.As(err, &nf):
		result = "not_found"
	case errors.As(err, &ve):
		result = "validation"
	case errors.As(err, &it):
		result = "invalid_transition"
	case errors.As(err, &ce):
		result = "conflict"
	default:
		result = "error"
	}
	metrics.ObserveTransition(transition, result)
}
