package lifecycle

import "fieldops/internal/model"

// Effect is an outbound write requested by a completed operation. Effects are
// data; the Coordinator executes them after the status change is committed.
type Effect interface {
	// EffectType returns a string identifier for the effect type.
	EffectType() string
}

// SetMileageEffect sets the vehicle's current odometer reading.
type SetMileageEffect struct {
	VehicleID string  `json:"vehicleId"`
	Mileage   float64 `json:"mileage"`
}

func (e SetMileageEffect) EffectType() string { return "set_mileage" }

// SetHoursEffect sets the vehicle's current engine-hour reading.
type SetHoursEffect struct {
	VehicleID string  `json:"vehicleId"`
	Hours     float64 `json:"hours"`
}

func (e SetHoursEffect) EffectType() string { return "set_hours" }

// EvaluateMaintenanceEffect asks the maintenance evaluator about the new hours
// and forwards any alert request to the alert sink.
type EvaluateMaintenanceEffect struct {
	VehicleID string  `json:"vehicleId"`
	Hours     float64 `json:"hours"`
}

func (e EvaluateMaintenanceEffect) EffectType() string { return "evaluate_maintenance" }

// completionEffects lists the writes a completed operation triggers.
func completionEffects(op model.Operation) []Effect {
	var out []Effect
	if op.EndMileage != nil {
		out = append(out, SetMileageEffect{VehicleID: op.VehicleID, Mileage: *op.EndMileage})
	}
	if op.EndHours != nil {
		out = append(out,
			SetHoursEffect{VehicleID: op.VehicleID, Hours: *op.EndHours},
			EvaluateMaintenanceEffect{VehicleID: op.VehicleID, Hours: *op.EndHours},
		)
	}
	return out
}
