package store

import (
	"context"
	"errors"
	"time"

	"fieldops/internal/model"
)

// Store is the persistence interface used by the lifecycle engine and the API server.
type Store interface {
	// Operations
	InsertOperation(ctx context.Context, op model.Operation) (model.Operation, error)
	GetOperation(ctx context.Context, id string) (model.Operation, error)
	// UpdateOperation writes op only if the stored status still equals expected.
	UpdateOperation(ctx context.Context, op model.Operation, expected model.OperationStatus) (model.Operation, error)
	// DeleteOperation removes id only if the stored status still equals expected.
	DeleteOperation(ctx context.Context, id string, expected model.OperationStatus) error
	ListOperations(ctx context.Context, f model.OperationFilter) ([]model.Operation, error)
	// ListOperationsForResource returns non-cancelled operations booked for a vehicle or operator on date.
	ListOperationsForResource(ctx context.Context, kind model.ResourceKind, resourceID, date string) ([]model.Operation, error)

	// Catalog
	UpsertVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error)
	GetVehicle(ctx context.Context, id string) (model.Vehicle, error)
	UpsertOperator(ctx context.Context, o model.Operator) (model.Operator, error)
	UpsertField(ctx context.Context, f model.Field) (model.Field, error)
	VehicleExists(ctx context.Context, id string) (bool, error)
	OperatorExists(ctx context.Context, id string) (bool, error)
	FieldExists(ctx context.Context, id string) (bool, error)
	GetVehicleTelemetry(ctx context.Context, id string) (model.Telemetry, error)
	SetVehicleTelemetry(ctx context.Context, id string, upd model.TelemetryUpdate) error

	// Alerts. CreateAlert returns the existing active alert of the same type and vehicle
	// instead of creating a duplicate; created reports which happened.
	CreateAlert(ctx context.Context, req model.AlertRequest) (alert model.Alert, created bool, err error)
	ListAlerts(ctx context.Context, vehicleID, status string) ([]model.Alert, error)
	ResolveAlert(ctx context.Context, id string) (model.Alert, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryWebhookDelivery(ctx context.Context, id string) error
}

var (
	ErrNotFound = errors.New("not found")
	// ErrStatusChanged means a compare-and-swap lost: the stored status differs from the expected one.
	ErrStatusChanged = errors.New("status changed concurrently")
	ErrDuplicate     = errors.New("already exists")
)
