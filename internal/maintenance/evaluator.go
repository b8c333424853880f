// Package maintenance decides when a vehicle is due for service based on its
// engine hours.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"fieldops/internal/model"
)

// Rules configure service intervals, in engine hours.
type Rules struct {
	// DefaultIntervalHours applies when neither the vehicle nor its type sets one.
	DefaultIntervalHours float64 `yaml:"default_interval_hours"`
	// NearDueFraction of the interval before the due point raises a warning.
	NearDueFraction float64 `yaml:"near_due_fraction"`
	// TypeIntervals maps vehicle type (e.g. "tractor") to its interval.
	TypeIntervals map[string]float64 `yaml:"type_intervals"`
}

// DefaultRules is used when no rules file is configured.
func DefaultRules() Rules {
	return Rules{DefaultIntervalHours: 250, NearDueFraction: 0.1}
}

func (r Rules) validate() error {
	if r.DefaultIntervalHours <= 0 {
		return fmt.Errorf("default_interval_hours must be positive, got %g", r.DefaultIntervalHours)
	}
	if r.NearDueFraction < 0 || r.NearDueFraction >= 1 {
		return fmt.Errorf("near_due_fraction must be in [0,1), got %g", r.NearDueFraction)
	}
	for typ, h := range r.TypeIntervals {
		if h <= 0 {
			return fmt.Errorf("type_intervals[%s] must be positive, got %g", typ, h)
		}
	}
	return nil
}

// ParseRules decodes YAML rules; unset fields keep their defaults.
func ParseRules(b []byte) (Rules, error) {
	r := DefaultRules()
	if err := yaml.Unmarshal(b, &r); err != nil {
		return Rules{}, fmt.Errorf("parse maintenance rules: %w", err)
	}
	if err := r.validate(); err != nil {
		return Rules{}, err
	}
	return r, nil
}

// LoadRules reads and parses a rules file.
func LoadRules(path string) (Rules, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, err
	}
	return ParseRules(b)
}

// VehicleSource looks up the vehicle's service history and type.
type VehicleSource interface {
	GetVehicle(ctx context.Context, id string) (model.Vehicle, error)
}

// Evaluator applies the current Rules. Safe for concurrent use; rules can be
// swapped while evaluations run.
type Evaluator struct {
	vehicles VehicleSource
	mu       sync.RWMutex
	rules    Rules
}

func NewEvaluator(vehicles VehicleSource, rules Rules) *Evaluator {
	return &Evaluator{vehicles: vehicles, rules: rules}
}

func (e *Evaluator) Rules() Rules {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules
}

func (e *Evaluator) SetRules(r Rules) {
	e.mu.Lock()
	e.rules = r
	e.mu.Unlock()
}

// IntervalFor resolves the vehicle's service interval: its own override,
// then its type's, then the default.
func (e *Evaluator) IntervalFor(v model.Vehicle) float64 {
	if v.ServiceIntervalHours > 0 {
		return v.ServiceIntervalHours
	}
	r := e.Rules()
	if h, ok := r.TypeIntervals[v.Type]; ok {
		return h
	}
	return r.DefaultIntervalHours
}

// Evaluate returns an overdue (critical) or near-due (warning) alert request,
// or nil when service is not yet close.
func (e *Evaluator) Evaluate(ctx context.Context, vehicleID string, hours float64) (*model.AlertRequest, error) {
	v, err := e.vehicles.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("maintenance: vehicle %s: %w", vehicleID, err)
	}
	if v.Status == model.VehicleRetired {
		return nil, nil
	}
	interval := e.IntervalFor(v)
	due := v.LastServiceHours + interval
	warnAt := due - interval*e.Rules().NearDueFraction
	switch {
	case hours >= due:
		return &model.AlertRequest{
			Type:       model.AlertMaintenanceOverdue,
			VehicleID:  vehicleID,
			Severity:   model.SeverityCritical,
			Message:    fmt.Sprintf("service overdue: %g engine hours, due at %g", hours, due),
			Hours:      hours,
			DueAtHours: due,
		}, nil
	case hours >= warnAt:
		return &model.AlertRequest{
			Type:       model.AlertMaintenanceDue,
			VehicleID:  vehicleID,
			Severity:   model.SeverityWarning,
			Message:    fmt.Sprintf("service due soon: %g engine hours, due at %g", hours, due),
			Hours:      hours,
			DueAtHours: due,
		}, nil
	}
	return nil, nil
}
