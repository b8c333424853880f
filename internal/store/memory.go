package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldops/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	ops       map[string]model.Operation // id -> operation
	vehicles  map[string]model.Vehicle
	operators map[string]model.Operator
	fields    map[string]model.Field
	alerts    map[string]model.Alert
	alertIDs  []string // insertion order
	subs      []model.Subscription
	// Webhooks queue state
	deliveries  map[string]*memDelivery // id -> delivery state
	deliveryIDs []string                // insertion order
	now         func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		ops:        map[string]model.Operation{},
		vehicles:   map[string]model.Vehicle{},
		operators:  map[string]model.Operator{},
		fields:     map[string]model.Field{},
		alerts:     map[string]model.Alert{},
		deliveries: map[string]*memDelivery{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) InsertOperation(ctx context.Context, op model.Operation) (model.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if _, ok := m.ops[op.ID]; ok {
		return model.Operation{}, fmt.Errorf("operation %s: %w", op.ID, ErrDuplicate)
	}
	op = cloneOperation(op)
	now := m.now()
	op.CreatedAt = now
	op.UpdatedAt = now
	m.ops[op.ID] = op
	return cloneOperation(op), nil
}

func (m *Memory) GetOperation(ctx context.Context, id string) (model.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[id]
	if !ok {
		return model.Operation{}, ErrNotFound
	}
	return cloneOperation(op), nil
}

func (m *Memory) UpdateOperation(ctx context.Context, op model.Operation, expected model.OperationStatus) (model.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.ops[op.ID]
	if !ok {
		return model.Operation{}, ErrNotFound
	}
	if cur.Status != expected {
		return cloneOperation(cur), ErrStatusChanged
	}
	op = cloneOperation(op)
	op.CreatedAt = cur.CreatedAt
	op.UpdatedAt = m.now()
	m.ops[op.ID] = op
	return cloneOperation(op), nil
}

// cloneOperation copies the reading pointers so stored operations never alias
// caller memory.
func cloneOperation(op model.Operation) model.Operation {
	op.StartHours = cloneFloat(op.StartHours)
	op.EndHours = cloneFloat(op.EndHours)
	op.StartMileage = cloneFloat(op.StartMileage)
	op.EndMileage = cloneFloat(op.EndMileage)
	op.AreaCovered = cloneFloat(op.AreaCovered)
	return op
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return model.Float(*v)
}

func (m *Memory) DeleteOperation(ctx context.Context, id string, expected model.OperationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.ops[id]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expected {
		return ErrStatusChanged
	}
	delete(m.ops, id)
	return nil
}

func (m *Memory) ListOperations(ctx context.Context, f model.OperationFilter) ([]model.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Operation{}
	for _, op := range m.ops {
		if f.VehicleID != "" && op.VehicleID != f.VehicleID {
			continue
		}
		if f.OperatorID != "" && op.OperatorID != f.OperatorID {
			continue
		}
		if f.Date != "" && op.Date != f.Date {
			continue
		}
		if f.Status != "" && op.Status != f.Status {
			continue
		}
		out = append(out, cloneOperation(op))
	}
	sortOperations(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) ListOperationsForResource(ctx context.Context, kind model.ResourceKind, resourceID, date string) ([]model.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Operation{}
	for _, op := range m.ops {
		if op.Date != date || op.Status == model.StatusCancelled {
			continue
		}
		switch kind {
		case model.ResourceVehicle:
			if op.VehicleID != resourceID {
				continue
			}
		case model.ResourceOperator:
			if op.OperatorID != resourceID {
				continue
			}
		default:
			return nil, fmt.Errorf("unknown resource kind %q", kind)
		}
		out = append(out, cloneOperation(op))
	}
	sortOperations(out)
	return out, nil
}

// sortOperations orders by date, start time, then id so listings are stable.
func sortOperations(ops []model.Operation) {
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Date != ops[j].Date {
			return ops[i].Date < ops[j].Date
		}
		if ops[i].StartTime != ops[j].StartTime {
			return ops[i].StartTime < ops[j].StartTime
		}
		return ops[i].ID < ops[j].ID
	})
}

func (m *Memory) UpsertVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.Status == "" {
		v.Status = model.VehicleAvailable
	}
	v.UpdatedAt = m.now()
	m.vehicles[v.ID] = v
	return v, nil
}

func (m *Memory) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return model.Vehicle{}, ErrNotFound
	}
	return v, nil
}

func (m *Memory) UpsertOperator(ctx context.Context, o model.Operator) (model.Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operators[o.ID] = o
	return o, nil
}

func (m *Memory) UpsertField(ctx context.Context, f model.Field) (model.Field, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[f.ID] = f
	return f, nil
}

func (m *Memory) VehicleExists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.vehicles[id]
	return ok, nil
}

func (m *Memory) OperatorExists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.operators[id]
	return ok, nil
}

func (m *Memory) FieldExists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.fields[id]
	return ok, nil
}

func (m *Memory) GetVehicleTelemetry(ctx context.Context, id string) (model.Telemetry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return model.Telemetry{}, ErrNotFound
	}
	return model.Telemetry{Mileage: v.CurrentMileage, Hours: v.CurrentHours}, nil
}

func (m *Memory) SetVehicleTelemetry(ctx context.Context, id string, upd model.TelemetryUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return ErrNotFound
	}
	if upd.Mileage != nil {
		v.CurrentMileage = *upd.Mileage
	}
	if upd.Hours != nil {
		v.CurrentHours = *upd.Hours
	}
	v.UpdatedAt = m.now()
	m.vehicles[id] = v
	return nil
}

func (m *Memory) CreateAlert(ctx context.Context, req model.AlertRequest) (model.Alert, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.alertIDs {
		a := m.alerts[id]
		if a.Status == model.AlertActive && a.Type == req.Type && a.VehicleID == req.VehicleID {
			return a, false, nil
		}
	}
	a := model.Alert{
		ID:         uuid.New().String(),
		Type:       req.Type,
		VehicleID:  req.VehicleID,
		Severity:   req.Severity,
		Message:    req.Message,
		Hours:      req.Hours,
		DueAtHours: req.DueAtHours,
		Status:     model.AlertActive,
		CreatedAt:  m.now(),
	}
	m.alerts[a.ID] = a
	m.alertIDs = append(m.alertIDs, a.ID)
	return a, true, nil
}

func (m *Memory) ListAlerts(ctx context.Context, vehicleID, status string) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Alert{}
	for _, id := range m.alertIDs {
		a := m.alerts[id]
		if vehicleID != "" && a.VehicleID != vehicleID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *Memory) ResolveAlert(ctx context.Context, id string) (model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return model.Alert{}, ErrNotFound
	}
	if a.Status != model.AlertResolved {
		now := m.now()
		a.Status = model.AlertResolved
		a.ResolvedAt = &now
		m.alerts[id] = a
	}
	return a, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Subscription{}, m.subs...), nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		if s.ID != id {
			out = append(out, s)
		}
	}
	m.subs = out
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending}, NextAttemptAt: m.now()}
	m.deliveries[id] = d
	m.deliveryIDs = append(m.deliveryIDs, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := []WebhookDelivery{}
	for _, id := range m.deliveryIDs {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		now := m.now()
		d.DeliveredAt = &now
	} else {
		d.Status = DeliveryRetry
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = m.now().Add(1 * time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if cursor != "" {
		for i, id := range m.deliveryIDs {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	out := []map[string]any{}
	next := ""
	for i := start; i < len(m.deliveryIDs); i++ {
		d := m.deliveries[m.deliveryIDs[i]]
		if status != "" && d.Status != status {
			continue
		}
		if len(out) == limit {
			next = out[len(out)-1]["id"].(string)
			break
		}
		item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
		if !d.NextAttemptAt.IsZero() {
			item["nextAttemptAt"] = d.NextAttemptAt
		}
		if d.LastError != "" {
			item["lastError"] = d.LastError
		}
		if d.ResponseCode != 0 {
			item["responseCode"] = d.ResponseCode
		}
		out = append(out, item)
	}
	return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Status = DeliveryPending
	d.NextAttemptAt = m.now()
	return nil
}
