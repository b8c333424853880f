package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"fieldops/internal/metrics"
	"fieldops/internal/model"
)

// MaintenanceEvaluator decides whether new engine hours warrant an alert.
type MaintenanceEvaluator interface {
	Evaluate(ctx context.Context, vehicleID string, hours float64) (*model.AlertRequest, error)
}

// AlertSink raises alerts. It deduplicates active alerts of the same type and
// vehicle; created reports whether a new alert was stored.
type AlertSink interface {
	CreateAlert(ctx context.Context, req model.AlertRequest) (alert model.Alert, created bool, err error)
}

// TelemetryWriter is the slice of the resource catalog the coordinator writes to.
type TelemetryWriter interface {
	GetVehicleTelemetry(ctx context.Context, id string) (model.Telemetry, error)
	SetVehicleTelemetry(ctx context.Context, id string, upd model.TelemetryUpdate) error
}

// Outcome is what running a completion's effects produced.
type Outcome struct {
	Warnings []Warning
	Alert    *model.Alert
	// AlertCreated is false when the sink returned an existing active alert.
	AlertCreated bool
}

// Coordinator executes completion effects. Each effect is retried on its own;
// failures become warnings and never undo the completion.
type Coordinator struct {
	telemetry TelemetryWriter
	evaluator MaintenanceEvaluator
	alerts    AlertSink
	attempts  int
	backoff   time.Duration
	log       *log.Logger
}

// NewCoordinator wires the effect runner. evaluator and alerts may be nil, in
// which case maintenance effects are skipped.
func NewCoordinator(telemetry TelemetryWriter, evaluator MaintenanceEvaluator, alerts AlertSink, attempts int, logger *log.Logger) *Coordinator {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Coordinator{
		telemetry: telemetry,
		evaluator: evaluator,
		alerts:    alerts,
		attempts:  attempts,
		backoff:   100 * time.Millisecond,
		log:       logger,
	}
}

// WithBackoff sets the base delay between retries of one effect.
func (c *Coordinator) WithBackoff(d time.Duration) *Coordinator {
	c.backoff = d
	return c
}

// Run executes effects in order.
func (c *Coordinator) Run(ctx context.Context, effects []Effect) Outcome {
	var out Outcome
	for _, eff := range effects {
		switch e := eff.(type) {
		case SetMileageEffect:
			if w := c.setTelemetry(ctx, e.EffectType(), e.VehicleID, "mileage", e.Mileage, model.TelemetryUpdate{Mileage: model.Float(e.Mileage)}); w != nil {
				out.Warnings = append(out.Warnings, *w)
			}
		case SetHoursEffect:
			if w := c.setTelemetry(ctx, e.EffectType(), e.VehicleID, "hours", e.Hours, model.TelemetryUpdate{Hours: model.Float(e.Hours)}); w != nil {
				out.Warnings = append(out.Warnings, *w)
			}
		case EvaluateMaintenanceEffect:
			alert, created, w := c.evaluateMaintenance(ctx, e)
			if w != nil {
				out.Warnings = append(out.Warnings, *w)
			}
			if alert != nil {
				out.Alert = alert
				out.AlertCreated = created
			}
		default:
			out.Warnings = append(out.Warnings, Warning{Code: WarnUnknownEffect, Message: fmt.Sprintf("no runner for effect %q", eff.EffectType())})
		}
	}
	return out
}

func (c *Coordinator) setTelemetry(ctx context.Context, effect, vehicleID, reading string, value float64, upd model.TelemetryUpdate) *Warning {
	if c.telemetry == nil {
		return nil
	}
	var current model.Telemetry
	err := c.retry(ctx, func() error {
		var err error
		current, err = c.telemetry.GetVehicleTelemetry(ctx, vehicleID)
		return err
	})
	if err != nil {
		return c.fail(effect, WarnTelemetryFailed, fmt.Sprintf("read %s of vehicle %s: %v", reading, vehicleID, err))
	}
	have := current.Mileage
	if reading == "hours" {
		have = current.Hours
	}
	if value < have {
		return c.fail(effect, WarnTelemetryRegression, fmt.Sprintf("vehicle %s %s stays at %g; completed operation reported lower %g", vehicleID, reading, have, value))
	}
	if err := c.retry(ctx, func() error { return c.telemetry.SetVehicleTelemetry(ctx, vehicleID, upd) }); err != nil {
		return c.fail(effect, WarnTelemetryFailed, fmt.Sprintf("set %s of vehicle %s to %g: %v", reading, vehicleID, value, err))
	}
	return nil
}

func (c *Coordinator) evaluateMaintenance(ctx context.Context, e EvaluateMaintenanceEffect) (*model.Alert, bool, *Warning) {
	if c.evaluator == nil {
		return nil, false, nil
	}
	var req *model.AlertRequest
	err := c.retry(ctx, func() error {
		var err error
		req, err = c.evaluator.Evaluate(ctx, e.VehicleID, e.Hours)
		return err
	})
	if err != nil {
		return nil, false, c.fail(e.EffectType(), WarnMaintenanceFailed, fmt.Sprintf("evaluate maintenance for vehicle %s: %v", e.VehicleID, err))
	}
	if req == nil || c.alerts == nil {
		return nil, false, nil
	}
	var alert model.Alert
	var created bool
	err = c.retry(ctx, func() error {
		var err error
		alert, created, err = c.alerts.CreateAlert(ctx, *req)
		return err
	})
	if err != nil {
		return nil, false, c.fail("create_alert", WarnAlertFailed, fmt.Sprintf("raise %s alert for vehicle %s: %v", req.Type, e.VehicleID, err))
	}
	if created {
		metrics.MaintenanceAlerts.WithLabelValues("created").Inc()
		c.log.Printf("lifecycle: %s alert %s raised for vehicle %s at %g hours", alert.Type, alert.ID, alert.VehicleID, e.Hours)
	} else {
		metrics.MaintenanceAlerts.WithLabelValues("deduplicated").Inc()
	}
	return &alert, created, nil
}

func (c *Coordinator) fail(effect, code, msg string) *Warning {
	metrics.SideEffectFailures.WithLabelValues(effect).Inc()
	c.log.Printf("lifecycle: side effect %s: %s", effect, msg)
	return &Warning{Code: code, Message: msg}
}

// retry runs fn up to c.attempts times with linear backoff.
func (c *Coordinator) retry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < c.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
			case <-time.After(time.Duration(i) * c.backoff):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
