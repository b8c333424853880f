package lifecycle

import (
	"fmt"
	"strings"

	"fieldops/internal/model"
)

// NotFoundError reports a missing operation or referenced catalog entity.
type NotFoundError struct {
	Kind string // "operation", "vehicle", "operator", "field"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// ValidationError reports malformed or out-of-range input, including failed
// numeric progression. Guard names the check that rejected it.
type ValidationError struct {
	Guard  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Guard, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Guard, e.Field, e.Reason)
}

// InvalidTransitionError reports a transition that is illegal from the
// operation's current state, or refused by a date guard.
type InvalidTransitionError struct {
	Guard      string
	Transition Event
	From       model.OperationStatus
	Reason     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s operation in %s state: %s (%s)", e.Transition, e.From, e.Reason, e.Guard)
}

// ConflictError is returned when conflict enforcement is enabled and the
// candidate operation double-books a vehicle or operator.
type ConflictError struct {
	Conflicts ConflictReport
}

func (e *ConflictError) Error() string {
	var parts []string
	if len(e.Conflicts.Vehicle) > 0 {
		parts = append(parts, "vehicle booked by "+strings.Join(e.Conflicts.Vehicle, ","))
	}
	if len(e.Conflicts.Operator) > 0 {
		parts = append(parts, "operator booked by "+strings.Join(e.Conflicts.Operator, ","))
	}
	return "scheduling conflict: " + strings.Join(parts, "; ")
}

// Warning is a non-fatal finding attached to an otherwise successful result.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warning codes.
const (
	WarnMileageJump         = "mileage_jump"
	WarnTelemetryRegression = "telemetry_regression"
	WarnTelemetryFailed     = "telemetry_update_failed"
	WarnMaintenanceFailed   = "maintenance_evaluation_failed"
	WarnAlertFailed         = "alert_create_failed"
	WarnUnknownEffect       = "unknown_effect"
)
