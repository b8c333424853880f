package lifecycle

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"fieldops/internal/model"
)

// OperationSource is the read side the availability scan needs.
type OperationSource interface {
	// ListOperationsForResource returns non-cancelled operations for the resource on date.
	ListOperationsForResource(ctx context.Context, kind model.ResourceKind, resourceID, date string) ([]model.Operation, error)
}

// Window is a same-day clock interval [Start, End) in HH:MM.
type Window struct {
	Start string
	End   string
}

// ConflictReport lists conflicting operation ids per resource.
type ConflictReport struct {
	Vehicle  []string `json:"vehicle"`
	Operator []string `json:"operator"`
}

// Empty reports whether no conflict was found.
func (r ConflictReport) Empty() bool { return len(r.Vehicle) == 0 && len(r.Operator) == 0 }

// AvailabilityChecker detects double-booking. It never writes.
type AvailabilityChecker struct {
	ops OperationSource
}

func NewAvailabilityChecker(ops OperationSource) *AvailabilityChecker {
	return &AvailabilityChecker{ops: ops}
}

const minutesPerDay = 24 * 60

// span converts a window to minutes since midnight. Missing, unparsable or
// backwards bounds occupy the whole day.
func span(start, end string) (int, int) {
	s, okS := clockMinutes(start)
	e, okE := clockMinutes(end)
	if !okS || !okE || e <= s {
		return 0, minutesPerDay
	}
	return s, e
}

func clockMinutes(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	t, err := time.Parse(model.ClockLayout, v)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// overlaps is half-open interval overlap: touching windows do not conflict.
func overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}

// FindConflicts returns ids of non-cancelled operations holding the resource on
// date whose window overlaps window. A nil window conflicts with everything
// booked that day. excludeOperationID skips the operation being edited.
func (c *AvailabilityChecker) FindConflicts(ctx context.Context, kind model.ResourceKind, resourceID, date string, window *Window, excludeOperationID string) ([]string, error) {
	booked, err := c.ops.ListOperationsForResource(ctx, kind, resourceID, date)
	if err != nil {
		return nil, err
	}
	newStart, newEnd := 0, minutesPerDay
	if window != nil {
		newStart, newEnd = span(window.Start, window.End)
	}
	out := []string{}
	for _, op := range booked {
		if op.ID == excludeOperationID || op.Status == model.StatusCancelled {
			continue
		}
		s, e := span(op.StartTime, op.EndTime)
		if overlaps(s, e, newStart, newEnd) {
			out = append(out, op.ID)
		}
	}
	return out, nil
}

// CheckOperation scans the operation's vehicle and operator concurrently.
func (c *AvailabilityChecker) CheckOperation(ctx context.Context, op model.Operation) (ConflictReport, error) {
	var window *Window
	if op.StartTime != "" && op.EndTime != "" {
		window = &Window{Start: op.StartTime, End: op.EndTime}
	}
	var report ConflictReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := c.FindConflicts(gctx, model.ResourceVehicle, op.VehicleID, op.Date, window, op.ID)
		report.Vehicle = ids
		return err
	})
	g.Go(func() error {
		ids, err := c.FindConflicts(gctx, model.ResourceOperator, op.OperatorID, op.Date, window, op.ID)
		report.Operator = ids
		return err
	})
	if err := g.Wait(); err != nil {
		return ConflictReport{}, err
	}
	return report, nil
}
