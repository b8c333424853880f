package lifecycle

import (
	"fmt"
	"math"
)

// Physical plausibility bounds for meter readings.
const (
	MaxEngineHours = 50000
	// MaxShiftHours bounds endHours-startHours for a single operation.
	MaxShiftHours = 18
	// MileageWarnDelta is the odometer jump above which completion warns.
	MileageWarnDelta = 500
)

// Progression failure codes.
const (
	CodeNotFinite     = "not_finite"
	CodeNegative      = "negative"
	CodeAboveCeiling  = "above_ceiling"
	CodeNotIncreasing = "not_increasing"
	CodeDeltaExceeded = "delta_exceeded"
)

// ProgressionError describes why a reading or a pair of readings was rejected.
type ProgressionError struct {
	Code   string
	Reason string
}

func (e *ProgressionError) Error() string { return e.Reason }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// ValidateEngineHours accepts finite readings in [0, MaxEngineHours].
func ValidateEngineHours(v float64) error {
	switch {
	case !finite(v):
		return &ProgressionError{Code: CodeNotFinite, Reason: "engine hours must be a finite number"}
	case v < 0:
		return &ProgressionError{Code: CodeNegative, Reason: fmt.Sprintf("engine hours %g must not be negative", v)}
	case v > MaxEngineHours:
		return &ProgressionError{Code: CodeAboveCeiling, Reason: fmt.Sprintf("engine hours %g exceed the %d ceiling", v, MaxEngineHours)}
	}
	return nil
}

// ValidateMileage accepts finite, non-negative odometer readings.
func ValidateMileage(v float64) error {
	switch {
	case !finite(v):
		return &ProgressionError{Code: CodeNotFinite, Reason: "mileage must be a finite number"}
	case v < 0:
		return &ProgressionError{Code: CodeNegative, Reason: fmt.Sprintf("mileage %g must not be negative", v)}
	}
	return nil
}

// ValidateProgression requires end > start and end-start <= maxDelta.
func ValidateProgression(start, end, maxDelta float64) error {
	if !finite(start) || !finite(end) {
		return &ProgressionError{Code: CodeNotFinite, Reason: "readings must be finite numbers"}
	}
	if end <= start {
		return &ProgressionError{Code: CodeNotIncreasing, Reason: fmt.Sprintf("engine hours did not increase (start %g, end %g)", start, end)}
	}
	if end-start > maxDelta {
		return &ProgressionError{Code: CodeDeltaExceeded, Reason: fmt.Sprintf("engine hours advanced %g, more than the %g allowed for one operation", end-start, maxDelta)}
	}
	return nil
}

// ValidateMileageProgression requires end > start. A jump larger than
// MileageWarnDelta is reported as a warning, not an error.
func ValidateMileageProgression(start, end float64) (*Warning, error) {
	if !finite(start) || !finite(end) {
		return nil, &ProgressionError{Code: CodeNotFinite, Reason: "readings must be finite numbers"}
	}
	if end <= start {
		return nil, &ProgressionError{Code: CodeNotIncreasing, Reason: fmt.Sprintf("mileage did not increase (start %g, end %g)", start, end)}
	}
	if end-start > MileageWarnDelta {
		return &Warning{
			Code:    WarnMileageJump,
			Message: fmt.Sprintf("mileage advanced %g in one operation (more than %d)", end-start, MileageWarnDelta),
		}, nil
	}
	return nil, nil
}
