package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldops/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// tsLayout is fixed-width so stored timestamps compare correctly as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// SQL is the database/sql backed Store. Postgres and SQLite share every query;
// placeholders are written as ? and rebound for Postgres.
type SQL struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func newSQL(db *sql.DB, d dialect) *SQL {
	return &SQL{db: db, dialect: d, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *SQL) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQL) rebind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(q), args...)
}

func (s *SQL) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(q), args...)
}

func (s *SQL) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(q), args...)
}

func (s *SQL) stamp() string { return s.now().UTC().Format(tsLayout) }

func parseTS(v string) time.Time {
	t, _ := time.Parse(tsLayout, v)
	return t
}

const opColumns = `id, vehicle_id, operator_id, field_id, operation_type, date, start_time, end_time,
	start_hours, end_hours, start_mileage, end_mileage, area_covered, weather, notes, status, created_at, updated_at`

type scanner interface{ Scan(dest ...any) error }

func scanOperation(row scanner) (model.Operation, error) {
	var op model.Operation
	var sh, eh, sm, em, area sql.NullFloat64
	var status, created, updated string
	err := row.Scan(&op.ID, &op.VehicleID, &op.OperatorID, &op.FieldID, &op.OperationType, &op.Date, &op.StartTime, &op.EndTime,
		&sh, &eh, &sm, &em, &area, &op.Weather, &op.Notes, &status, &created, &updated)
	if err != nil {
		return model.Operation{}, err
	}
	op.StartHours = fromNull(sh)
	op.EndHours = fromNull(eh)
	op.StartMileage = fromNull(sm)
	op.EndMileage = fromNull(em)
	op.AreaCovered = fromNull(area)
	op.Status = model.OperationStatus(status)
	op.CreatedAt = parseTS(created)
	op.UpdatedAt = parseTS(updated)
	return op, nil
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return model.Float(v.Float64)
}

func toNull(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func (s *SQL) InsertOperation(ctx context.Context, op model.Operation) (model.Operation, error) {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	now := s.stamp()
	_, err := s.exec(ctx, `INSERT INTO operations (`+opColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		op.ID, op.VehicleID, op.OperatorID, op.FieldID, op.OperationType, op.Date, op.StartTime, op.EndTime,
		toNull(op.StartHours), toNull(op.EndHours), toNull(op.StartMileage), toNull(op.EndMileage), toNull(op.AreaCovered),
		op.Weather, op.Notes, string(op.Status), now, now)
	if err != nil {
		return model.Operation{}, err
	}
	op.CreatedAt = parseTS(now)
	op.UpdatedAt = op.CreatedAt
	return op, nil
}

func (s *SQL) GetOperation(ctx context.Context, id string) (model.Operation, error) {
	op, err := scanOperation(s.queryRow(ctx, `SELECT `+opColumns+` FROM operations WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Operation{}, ErrNotFound
	}
	return op, err
}

func (s *SQL) UpdateOperation(ctx context.Context, op model.Operation, expected model.OperationStatus) (model.Operation, error) {
	now := s.stamp()
	res, err := s.exec(ctx, `UPDATE operations SET vehicle_id=?, operator_id=?, field_id=?, operation_type=?, date=?, start_time=?, end_time=?,
		start_hours=?, end_hours=?, start_mileage=?, end_mileage=?, area_covered=?, weather=?, notes=?, status=?, updated_at=?
		WHERE id=? AND status=?`,
		op.VehicleID, op.OperatorID, op.FieldID, op.OperationType, op.Date, op.StartTime, op.EndTime,
		toNull(op.StartHours), toNull(op.EndHours), toNull(op.StartMileage), toNull(op.EndMileage), toNull(op.AreaCovered),
		op.Weather, op.Notes, string(op.Status), now, op.ID, string(expected))
	if err != nil {
		return model.Operation{}, err
	}
	if err := s.casResult(ctx, res, op.ID); err != nil {
		cur, _ := s.GetOperation(ctx, op.ID)
		return cur, err
	}
	return s.GetOperation(ctx, op.ID)
}

func (s *SQL) DeleteOperation(ctx context.Context, id string, expected model.OperationStatus) error {
	res, err := s.exec(ctx, `DELETE FROM operations WHERE id=? AND status=?`, id, string(expected))
	if err != nil {
		return err
	}
	return s.casResult(ctx, res, id)
}

// casResult turns a zero-row conditional write into ErrNotFound or ErrStatusChanged.
func (s *SQL) casResult(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = s.queryRow(ctx, `SELECT 1 FROM operations WHERE id=?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrStatusChanged
}

func (s *SQL) ListOperations(ctx context.Context, f model.OperationFilter) ([]model.Operation, error) {
	q := `SELECT ` + opColumns + ` FROM operations WHERE 1=1`
	var args []any
	if f.VehicleID != "" {
		q += ` AND vehicle_id=?`
		args = append(args, f.VehicleID)
	}
	if f.OperatorID != "" {
		q += ` AND operator_id=?`
		args = append(args, f.OperatorID)
	}
	if f.Date != "" {
		q += ` AND date=?`
		args = append(args, f.Date)
	}
	if f.Status != "" {
		q += ` AND status=?`
		args = append(args, string(f.Status))
	}
	q += ` ORDER BY date, start_time, id`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return s.listOperations(ctx, q, args...)
}

func (s *SQL) ListOperationsForResource(ctx context.Context, kind model.ResourceKind, resourceID, date string) ([]model.Operation, error) {
	var col string
	switch kind {
	case model.ResourceVehicle:
		col = "vehicle_id"
	case model.ResourceOperator:
		col = "operator_id"
	default:
		return nil, fmt.Errorf("unknown resource kind %q", kind)
	}
	q := `SELECT ` + opColumns + ` FROM operations WHERE ` + col + `=? AND date=? AND status<>? ORDER BY start_time, id`
	return s.listOperations(ctx, q, resourceID, date, string(model.StatusCancelled))
}

func (s *SQL) listOperations(ctx context.Context, q string, args ...any) ([]model.Operation, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Operation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

func (s *SQL) UpsertVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	if v.Status == "" {
		v.Status = model.VehicleAvailable
	}
	now := s.stamp()
	_, err := s.exec(ctx, `INSERT INTO vehicles (id, name, type, status, current_mileage, current_hours, last_service_hours, service_interval_hours, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET name=excluded.name, type=excluded.type, status=excluded.status,
			current_mileage=excluded.current_mileage, current_hours=excluded.current_hours,
			last_service_hours=excluded.last_service_hours, service_interval_hours=excluded.service_interval_hours,
			updated_at=excluded.updated_at`,
		v.ID, v.Name, v.Type, string(v.Status), v.CurrentMileage, v.CurrentHours, v.LastServiceHours, v.ServiceIntervalHours, now)
	if err != nil {
		return model.Vehicle{}, err
	}
	v.UpdatedAt = parseTS(now)
	return v, nil
}

func (s *SQL) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	var v model.Vehicle
	var status, updated string
	err := s.queryRow(ctx, `SELECT id, name, type, status, current_mileage, current_hours, last_service_hours, service_interval_hours, updated_at
		FROM vehicles WHERE id=?`, id).Scan(&v.ID, &v.Name, &v.Type, &status, &v.CurrentMileage, &v.CurrentHours, &v.LastServiceHours, &v.ServiceIntervalHours, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Vehicle{}, ErrNotFound
	}
	if err != nil {
		return model.Vehicle{}, err
	}
	v.Status = model.VehicleStatus(status)
	v.UpdatedAt = parseTS(updated)
	return v, nil
}

func (s *SQL) UpsertOperator(ctx context.Context, o model.Operator) (model.Operator, error) {
	_, err := s.exec(ctx, `INSERT INTO operators (id, name, status) VALUES (?,?,?)
		ON CONFLICT (id) DO UPDATE SET name=excluded.name, status=excluded.status`, o.ID, o.Name, o.Status)
	return o, err
}

func (s *SQL) UpsertField(ctx context.Context, f model.Field) (model.Field, error) {
	_, err := s.exec(ctx, `INSERT INTO fields (id, name, area_ha) VALUES (?,?,?)
		ON CONFLICT (id) DO UPDATE SET name=excluded.name, area_ha=excluded.area_ha`, f.ID, f.Name, toNull(f.AreaHa))
	return f, err
}

func (s *SQL) exists(ctx context.Context, table, id string) (bool, error) {
	var one int
	err := s.queryRow(ctx, `SELECT 1 FROM `+table+` WHERE id=?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQL) VehicleExists(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, "vehicles", id)
}

func (s *SQL) OperatorExists(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, "operators", id)
}

func (s *SQL) FieldExists(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, "fields", id)
}

func (s *SQL) GetVehicleTelemetry(ctx context.Context, id string) (model.Telemetry, error) {
	var t model.Telemetry
	err := s.queryRow(ctx, `SELECT current_mileage, current_hours FROM vehicles WHERE id=?`, id).Scan(&t.Mileage, &t.Hours)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Telemetry{}, ErrNotFound
	}
	return t, err
}

func (s *SQL) SetVehicleTelemetry(ctx context.Context, id string, upd model.TelemetryUpdate) error {
	res, err := s.exec(ctx, `UPDATE vehicles SET current_mileage=COALESCE(?, current_mileage), current_hours=COALESCE(?, current_hours), updated_at=? WHERE id=?`,
		toNull(upd.Mileage), toNull(upd.Hours), s.stamp(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const alertColumns = `id, type, vehicle_id, severity, message, hours, due_at_hours, status, created_at, resolved_at`

func scanAlert(row scanner) (model.Alert, error) {
	var a model.Alert
	var created string
	var resolved sql.NullString
	if err := row.Scan(&a.ID, &a.Type, &a.VehicleID, &a.Severity, &a.Message, &a.Hours, &a.DueAtHours, &a.Status, &created, &resolved); err != nil {
		return model.Alert{}, err
	}
	a.CreatedAt = parseTS(created)
	if resolved.Valid {
		t := parseTS(resolved.String)
		a.ResolvedAt = &t
	}
	return a, nil
}

func (s *SQL) activeAlert(ctx context.Context, typ, vehicleID string) (model.Alert, error) {
	return scanAlert(s.queryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE type=? AND vehicle_id=? AND status=?`, typ, vehicleID, model.AlertActive))
}

func (s *SQL) CreateAlert(ctx context.Context, req model.AlertRequest) (model.Alert, bool, error) {
	a, err := s.activeAlert(ctx, req.Type, req.VehicleID)
	if err == nil {
		return a, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Alert{}, false, err
	}
	id := uuid.New().String()
	now := s.stamp()
	res, err := s.exec(ctx, `INSERT INTO alerts (id, type, vehicle_id, severity, message, hours, due_at_hours, status, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT (type, vehicle_id) WHERE status = 'active' DO NOTHING`,
		id, req.Type, req.VehicleID, req.Severity, req.Message, req.Hours, req.DueAtHours, model.AlertActive, now)
	if err != nil {
		return model.Alert{}, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// lost the race to another writer
		a, err := s.activeAlert(ctx, req.Type, req.VehicleID)
		return a, false, err
	}
	return model.Alert{
		ID: id, Type: req.Type, VehicleID: req.VehicleID, Severity: req.Severity, Message: req.Message,
		Hours: req.Hours, DueAtHours: req.DueAtHours, Status: model.AlertActive, CreatedAt: parseTS(now),
	}, true, nil
}

func (s *SQL) ListAlerts(ctx context.Context, vehicleID, status string) ([]model.Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []any
	if vehicleID != "" {
		q += ` AND vehicle_id=?`
		args = append(args, vehicleID)
	}
	if status != "" {
		q += ` AND status=?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at, id`
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQL) ResolveAlert(ctx context.Context, id string) (model.Alert, error) {
	if _, err := s.exec(ctx, `UPDATE alerts SET status=?, resolved_at=? WHERE id=? AND status=?`,
		model.AlertResolved, s.stamp(), id, model.AlertActive); err != nil {
		return model.Alert{}, err
	}
	a, err := scanAlert(s.queryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Alert{}, ErrNotFound
	}
	return a, err
}

func (s *SQL) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := s.exec(ctx, `INSERT INTO subscriptions (id, url, events, secret, created_at) VALUES (?,?,?,?,?)`, id, req.URL, string(ev), req.Secret, s.stamp())
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (s *SQL) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.query(ctx, `SELECT id, url, secret, events FROM subscriptions ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var sub model.Subscription
		var ev string
		if err := rows.Scan(&sub.ID, &sub.URL, &sub.Secret, &ev); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(ev), &sub.Events)
		out = append(out, sub)
	}
	return out, rows.Err()
}

// GetSubscriptionsForEvent filters in Go; events are stored as a JSON text array on both backends.
func (s *SQL) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	all, err := s.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Subscription
	for _, sub := range all {
		for _, e := range sub.Events {
			if e == eventType {
				out = append(out, sub)
				break
			}
		}
	}
	return out, nil
}

func (s *SQL) DeleteSubscription(ctx context.Context, id string) error {
	_, err := s.exec(ctx, `DELETE FROM subscriptions WHERE id=?`, id)
	return err
}

func (s *SQL) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	now := s.stamp()
	_, err := s.exec(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key, updated_at)
		VALUES (?,?,?,?,?,?,?,0,?,?,?)
		ON CONFLICT (event_type, url, dedup_key) DO NOTHING`,
		id, subscriptionID, eventType, url, secret, string(payload), DeliveryPending, now, computeDedupKey(payload), now)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQL) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := s.query(ctx, `SELECT id, subscription_id, event_type, url, secret, payload, status, attempts
		FROM webhook_deliveries WHERE status IN (?,?) AND next_attempt_at <= ? ORDER BY next_attempt_at ASC LIMIT ?`,
		DeliveryPending, DeliveryRetry, s.stamp(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		var payload string
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		d.Payload = []byte(payload)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQL) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	now := s.stamp()
	if !success {
		if nextAttemptAt == nil {
			t := s.now().Add(1 * time.Minute)
			nextAttemptAt = &t
		}
		_, err := s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, last_error=?, next_attempt_at=?, updated_at=?, response_code=?, latency_ms=? WHERE id=?`,
			DeliveryRetry, lastError, nextAttemptAt.UTC().Format(tsLayout), now, responseCode, latencyMs, id)
		return err
	}
	_, err := s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, delivered_at=?, updated_at=?, response_code=?, latency_ms=? WHERE id=?`,
		DeliveryDelivered, now, now, responseCode, latencyMs, id)
	return err
}

func (s *SQL) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, last_error=?, updated_at=?, response_code=?, latency_ms=? WHERE id=?`,
		DeliveryFailed, lastError, s.stamp(), responseCode, latencyMs, id)
	return err
}

func (s *SQL) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id, event_type, status, attempts, next_attempt_at, last_error, response_code, url FROM webhook_deliveries WHERE 1=1`
	var args []any
	if status != "" {
		q += ` AND status=?`
		args = append(args, status)
	}
	if cursor != "" {
		q += ` AND id > ?`
		args = append(args, cursor)
	}
	q += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, typ, st, nextAt, lastErr, url string
		var attempts, code int
		if err := rows.Scan(&id, &typ, &st, &attempts, &nextAt, &lastErr, &code, &url); err != nil {
			return nil, "", err
		}
		m := map[string]any{"id": id, "eventType": typ, "status": st, "attempts": attempts, "url": url, "nextAttemptAt": parseTS(nextAt)}
		if lastErr != "" {
			m["lastError"] = lastErr
		}
		if code != 0 {
			m["responseCode"] = code
		}
		out = append(out, m)
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (s *SQL) RetryWebhookDelivery(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `UPDATE webhook_deliveries SET status=?, next_attempt_at=?, updated_at=? WHERE id=?`, DeliveryPending, s.stamp(), s.stamp(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func computeDedupKey(payload []byte) string {
	// try to parse JSON and use id
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}
