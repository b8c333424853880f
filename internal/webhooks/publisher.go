package webhooks

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"fieldops/internal/model"
	"fieldops/internal/store"
)

// Event types delivered to subscribers.
const (
	EventOperationCreated   = "operation.created"
	EventOperationUpdated   = "operation.updated"
	EventOperationStarted   = "operation.started"
	EventOperationCompleted = "operation.completed"
	EventOperationCancelled = "operation.cancelled"
	EventOperationDeleted   = "operation.deleted"
	EventMaintenanceAlert   = "maintenance.alert"
)

// Publisher enqueues one delivery per matching subscription. The Worker sends them.
type Publisher struct {
	Store  store.Store
	Logger *log.Logger
}

func NewPublisher(s store.Store, logger *log.Logger) *Publisher {
	return &Publisher{Store: s, Logger: logger}
}

// Emit enqueues eventType for every subscription listening to it.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil {
		p.logf("webhooks: lookup subscriptions for %s: %v", eventType, err)
		return
	}
	if len(subs) == 0 {
		return
	}
	body, err := json.Marshal(map[string]any{
		"id":   "evt_" + uuid.New().String(),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	})
	if err != nil {
		p.logf("webhooks: encode %s: %v", eventType, err)
		return
	}
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			p.logf("webhooks: enqueue %s for %s: %v", eventType, s.ID, err)
		}
	}
}

func (p *Publisher) logf(format string, args ...any) {
	if p.Logger != nil {
		p.Logger.Printf(format, args...)
	}
}

// AlertStore is the persistence half of an alert sink.
type AlertStore interface {
	CreateAlert(ctx context.Context, req model.AlertRequest) (model.Alert, bool, error)
}

// AlertNotifier stores alerts and announces newly raised ones to subscribers.
// Duplicates of an already-active alert are not re-announced.
type AlertNotifier struct {
	Alerts    AlertStore
	Publisher *Publisher
}

func (n *AlertNotifier) CreateAlert(ctx context.Context, req model.AlertRequest) (model.Alert, bool, error) {
	a, created, err := n.Alerts.CreateAlert(ctx, req)
	if err != nil || !created {
		return a, created, err
	}
	if n.Publisher != nil {
		n.Publisher.Emit(ctx, EventMaintenanceAlert, a)
	}
	return a, created, nil
}

// OperationPayload is the event body shared by webhooks and live streams.
func OperationPayload(op model.Operation) map[string]any {
	return map[string]any{
		"operationId":   op.ID,
		"vehicleId":     op.VehicleID,
		"operatorId":    op.OperatorID,
		"operationType": op.OperationType,
		"date":          op.Date,
		"status":        op.Status,
		"ts":            time.Now().UTC().Format(time.RFC3339),
	}
}
