package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"fieldops/internal/model"
)

// GuardContext is the input every guard sees: the stored operation with the
// caller's input already merged, plus the request clock.
type GuardContext struct {
	Op     model.Operation
	Event  Event
	Now    time.Time
	Config Config
	// Warnings collects soft findings; guards may append.
	Warnings []Warning
}

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Field   string
	Reason  string // Human-readable reason (populated when not allowed)
}

func allow() GuardResult { return GuardResult{Allowed: true} }

func deny(field, reason string) GuardResult {
	return GuardResult{Field: field, Reason: reason}
}

type guardKind int

const (
	// transition guards fail with InvalidTransitionError
	kindTransition guardKind = iota
	// validation guards fail with ValidationError
	kindValidation
)

// Guard is a named precondition on a transition.
type Guard struct {
	Name  string
	kind  guardKind
	Check func(gc *GuardContext) GuardResult
}

// Guard lists per action, evaluated in order; the first failure wins.
var (
	shapeGuards = []Guard{
		{Name: "vehicle_required", kind: kindValidation, Check: required("vehicleId", func(op model.Operation) string { return op.VehicleID })},
		{Name: "operator_required", kind: kindValidation, Check: required("operatorId", func(op model.Operation) string { return op.OperatorID })},
		{Name: "operation_type", kind: kindValidation, Check: checkOperationType},
		{Name: "date_format", kind: kindValidation, Check: checkDateFormat},
		{Name: "start_time_format", kind: kindValidation, Check: clockFormat("startTime", func(op model.Operation) string { return op.StartTime })},
		{Name: "end_time_format", kind: kindValidation, Check: clockFormat("endTime", func(op model.Operation) string { return op.EndTime })},
		{Name: "window_order", kind: kindValidation, Check: checkWindowOrder},
		{Name: "start_hours_plausible", kind: kindValidation, Check: hoursPlausible("startHours", func(op model.Operation) *float64 { return op.StartHours })},
		{Name: "start_mileage_plausible", kind: kindValidation, Check: mileagePlausible("startMileage", func(op model.Operation) *float64 { return op.StartMileage })},
	}

	startGuards = []Guard{
		statusGuard("status_planned", EventStart, "operation not in planned state"),
		{Name: "date_horizon", kind: kindTransition, Check: checkDateHorizon},
		{Name: "start_time_format", kind: kindValidation, Check: clockFormat("startTime", func(op model.Operation) string { return op.StartTime })},
		{Name: "window_order", kind: kindValidation, Check: checkWindowOrder},
		{Name: "start_hours_present", kind: kindValidation, Check: present("startHours", func(op model.Operation) *float64 { return op.StartHours })},
		{Name: "start_hours_plausible", kind: kindValidation, Check: hoursPlausible("startHours", func(op model.Operation) *float64 { return op.StartHours })},
		{Name: "start_mileage_plausible", kind: kindValidation, Check: mileagePlausible("startMileage", func(op model.Operation) *float64 { return op.StartMileage })},
	}

	completeGuards = []Guard{
		statusGuard("status_active", EventComplete, "operation not in active state"),
		{Name: "start_time_recorded", kind: kindValidation, Check: required("startTime", func(op model.Operation) string { return op.StartTime })},
		{Name: "start_hours_recorded", kind: kindValidation, Check: present("startHours", func(op model.Operation) *float64 { return op.StartHours })},
		{Name: "end_hours_present", kind: kindValidation, Check: present("endHours", func(op model.Operation) *float64 { return op.EndHours })},
		{Name: "end_hours_plausible", kind: kindValidation, Check: hoursPlausible("endHours", func(op model.Operation) *float64 { return op.EndHours })},
		{Name: "hours_progression", kind: kindValidation, Check: checkHoursProgression},
		{Name: "end_time_after_start", kind: kindValidation, Check: checkEndTimeAfterStart},
		{Name: "end_mileage_plausible", kind: kindValidation, Check: mileagePlausible("endMileage", func(op model.Operation) *float64 { return op.EndMileage })},
		{Name: "mileage_progression", kind: kindValidation, Check: checkMileageProgression},
		{Name: "area_covered_plausible", kind: kindValidation, Check: checkAreaCovered},
	}

	cancelGuards = []Guard{
		statusGuard("status_cancellable", EventCancel, "operation already completed or cancelled"),
	}

	deleteGuards = []Guard{
		{Name: "status_not_active", kind: kindTransition, Check: checkNotActive},
		{Name: "retention_window", kind: kindTransition, Check: checkRetention},
	}

	updateGuards = append([]Guard{
		{Name: "status_planned", kind: kindTransition, Check: checkPlanned},
	}, shapeGuards...)
)

// GuardsFor returns the ordered guard list for an action; create uses shape checks only.
func GuardsFor(ev Event) []Guard {
	switch ev {
	case EventStart:
		return startGuards
	case EventComplete:
		return completeGuards
	case EventCancel:
		return cancelGuards
	case EventDelete:
		return deleteGuards
	case EventUpdate:
		return updateGuards
	}
	return shapeGuards
}

// runGuards evaluates guards in order and converts the first denial into a typed error.
func runGuards(guards []Guard, gc *GuardContext) error {
	for _, g := range guards {
		res := g.Check(gc)
		if res.Allowed {
			continue
		}
		if g.kind == kindTransition {
			return &InvalidTransitionError{Guard: g.Name, Transition: gc.Event, From: gc.Op.Status, Reason: res.Reason}
		}
		return &ValidationError{Guard: g.Name, Field: res.Field, Reason: res.Reason}
	}
	return nil
}

func statusGuard(name string, ev Event, reason string) Guard {
	return Guard{Name: name, kind: kindTransition, Check: func(gc *GuardContext) GuardResult {
		if _, ok := TransitionFor(gc.Op.Status, ev); !ok {
			return deny("status", fmt.Sprintf("%s (status is %s)", reason, gc.Op.Status))
		}
		return allow()
	}}
}

func checkPlanned(gc *GuardContext) GuardResult {
	if gc.Op.Status != model.StatusPlanned {
		return deny("status", fmt.Sprintf("only planned operations can be edited (status is %s)", gc.Op.Status))
	}
	return allow()
}

func checkNotActive(gc *GuardContext) GuardResult {
	if gc.Op.Status == model.StatusActive {
		return deny("status", "active operations cannot be deleted; complete or cancel it first")
	}
	return allow()
}

func required(field string, get func(model.Operation) string) func(*GuardContext) GuardResult {
	return func(gc *GuardContext) GuardResult {
		if strings.TrimSpace(get(gc.Op)) == "" {
			return deny(field, field+" is required")
		}
		return allow()
	}
}

func present(field string, get func(model.Operation) *float64) func(*GuardContext) GuardResult {
	return func(gc *GuardContext) GuardResult {
		if get(gc.Op) == nil {
			return deny(field, field+" must be recorded")
		}
		return allow()
	}
}

func hoursPlausible(field string, get func(model.Operation) *float64) func(*GuardContext) GuardResult {
	return func(gc *GuardContext) GuardResult {
		v := get(gc.Op)
		if v == nil {
			return allow()
		}
		if err := ValidateEngineHours(*v); err != nil {
			return deny(field, err.Error())
		}
		return allow()
	}
}

func mileagePlausible(field string, get func(model.Operation) *float64) func(*GuardContext) GuardResult {
	return func(gc *GuardContext) GuardResult {
		v := get(gc.Op)
		if v == nil {
			return allow()
		}
		if err := ValidateMileage(*v); err != nil {
			return deny(field, err.Error())
		}
		return allow()
	}
}

func clockFormat(field string, get func(model.Operation) string) func(*GuardContext) GuardResult {
	return func(gc *GuardContext) GuardResult {
		v := get(gc.Op)
		if v == "" {
			return allow()
		}
		if _, ok := clockMinutes(v); !ok {
			return deny(field, fmt.Sprintf("%s %q is not a HH:MM clock time", field, v))
		}
		return allow()
	}
}

func checkOperationType(gc *GuardContext) GuardResult {
	if len([]rune(strings.TrimSpace(gc.Op.OperationType))) < 2 {
		return deny("operationType", "operationType must be at least 2 characters")
	}
	return allow()
}

func checkDateFormat(gc *GuardContext) GuardResult {
	if _, err := time.Parse(model.DateLayout, gc.Op.Date); err != nil {
		return deny("date", fmt.Sprintf("date %q is not YYYY-MM-DD", gc.Op.Date))
	}
	return allow()
}

func checkWindowOrder(gc *GuardContext) GuardResult {
	s, okS := clockMinutes(gc.Op.StartTime)
	e, okE := clockMinutes(gc.Op.EndTime)
	if okS && okE && e <= s {
		return deny("endTime", fmt.Sprintf("endTime %s must be after startTime %s", gc.Op.EndTime, gc.Op.StartTime))
	}
	return allow()
}

// calendarDay parses date as midnight in now's location.
func calendarDay(date string, now time.Time) (time.Time, error) {
	return time.ParseInLocation(model.DateLayout, date, now.Location())
}

func today(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func checkDateHorizon(gc *GuardContext) GuardResult {
	day, err := calendarDay(gc.Op.Date, gc.Now)
	if err != nil {
		return deny("date", fmt.Sprintf("date %q is not YYYY-MM-DD", gc.Op.Date))
	}
	limit := today(gc.Now).AddDate(0, 0, gc.Config.StartHorizonDays)
	if day.After(limit) {
		return deny("date", fmt.Sprintf("operation is scheduled for %s, more than %d days ahead", gc.Op.Date, gc.Config.StartHorizonDays))
	}
	return allow()
}

func checkRetention(gc *GuardContext) GuardResult {
	if gc.Op.Status != model.StatusCompleted {
		return allow()
	}
	day, err := calendarDay(gc.Op.Date, gc.Now)
	if err != nil {
		return allow()
	}
	cutoff := today(gc.Now).AddDate(0, 0, -gc.Config.DeleteRetentionDays)
	if day.Before(cutoff) {
		return deny("date", fmt.Sprintf("completed operations older than %d days are kept for history", gc.Config.DeleteRetentionDays))
	}
	return allow()
}

func checkHoursProgression(gc *GuardContext) GuardResult {
	if err := ValidateProgression(*gc.Op.StartHours, *gc.Op.EndHours, gc.Config.MaxShiftHours); err != nil {
		return deny("endHours", err.Error())
	}
	return allow()
}

func checkEndTimeAfterStart(gc *GuardContext) GuardResult {
	if gc.Op.EndTime == "" {
		return allow()
	}
	e, ok := clockMinutes(gc.Op.EndTime)
	if !ok {
		return deny("endTime", fmt.Sprintf("endTime %q is not a HH:MM clock time", gc.Op.EndTime))
	}
	if s, ok := clockMinutes(gc.Op.StartTime); ok && e <= s {
		return deny("endTime", fmt.Sprintf("endTime %s must be after startTime %s", gc.Op.EndTime, gc.Op.StartTime))
	}
	return allow()
}

func checkMileageProgression(gc *GuardContext) GuardResult {
	if gc.Op.StartMileage == nil || gc.Op.EndMileage == nil {
		return allow()
	}
	warn, err := ValidateMileageProgression(*gc.Op.StartMileage, *gc.Op.EndMileage)
	if err != nil {
		return deny("endMileage", err.Error())
	}
	if warn != nil {
		gc.Warnings = append(gc.Warnings, *warn)
	}
	return allow()
}

func checkAreaCovered(gc *GuardContext) GuardResult {
	if gc.Op.AreaCovered == nil {
		return allow()
	}
	if v := *gc.Op.AreaCovered; !finite(v) || v < 0 {
		return deny("areaCovered", "areaCovered must be a non-negative number")
	}
	return allow()
}
