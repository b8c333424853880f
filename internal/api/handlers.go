package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fieldops/internal/lifecycle"
	"fieldops/internal/model"
	"fieldops/internal/webhooks"
)

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// pathParts splits what follows prefix, e.g. /v1/operations/{id}/start -> [id start].
func pathParts(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// emit publishes a lifecycle event to stream subscribers of the vehicle and to webhooks.
func (s *Server) emit(ctx context.Context, eventType string, op model.Operation, extra map[string]any) {
	data := webhooks.OperationPayload(op)
	for k, v := range extra {
		data[k] = v
	}
	s.Pub.Emit(ctx, eventType, data)
	s.Broker.Publish(op.VehicleID, SSEEvent{Type: eventType, Data: data})
}

type createResponse struct {
	model.Operation
	Conflicts *lifecycle.ConflictReport `json:"conflicts,omitempty"`
}

// OperationsHandler serves /v1/operations (create, list).
func (s *Server) OperationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/operations" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var d lifecycle.OperationDraft
		if !decodeJSON(w, r, &d, false) {
			return
		}
		op, err := s.Engine.Create(r.Context(), d)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.emit(r.Context(), webhooks.EventOperationCreated, op, nil)
		resp := createResponse{Operation: op}
		if v, _ := strconv.ParseBool(r.URL.Query().Get("checkConflicts")); v {
			report, err := s.Engine.Availability().CheckOperation(r.Context(), op)
			if err != nil {
				writeError(w, r, err)
				return
			}
			resp.Conflicts = &report
		}
		writeJSON(w, http.StatusCreated, resp)
	case http.MethodGet:
		q := r.URL.Query()
		f := model.OperationFilter{
			VehicleID:  q.Get("vehicleId"),
			OperatorID: q.Get("operatorId"),
			Date:       q.Get("date"),
			Status:     model.OperationStatus(q.Get("status")),
		}
		if f.Status != "" && !f.Status.Valid() {
			writeProblem(w, http.StatusBadRequest, "Invalid status", string(f.Status), r.URL.Path)
			return
		}
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeProblem(w, http.StatusBadRequest, "Invalid limit", v, r.URL.Path)
				return
			}
			f.Limit = n
		}
		ops, err := s.Engine.List(r.Context(), f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if ops == nil {
			ops = []model.Operation{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": ops})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// OperationByIDHandler serves /v1/operations/{id} and its transitions.
func (s *Server) OperationByIDHandler(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/v1/operations/")
	if len(parts) == 0 || len(parts) > 2 {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	id := parts[0]
	if len(parts) == 2 {
		if r.Method != http.MethodPut && r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.transition(w, r, id, parts[1])
		return
	}
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		op, err := s.Engine.Get(ctx, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, op)
	case http.MethodPatch:
		var p lifecycle.OperationPatch
		if !decodeJSON(w, r, &p, false) {
			return
		}
		op, err := s.Engine.Update(ctx, id, p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.emit(ctx, webhooks.EventOperationUpdated, op, nil)
		writeJSON(w, http.StatusOK, op)
	case http.MethodDelete:
		if !s.requireManager(w, r) {
			return
		}
		op, err := s.Engine.Delete(ctx, id, s.now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.emit(ctx, webhooks.EventOperationDeleted, op, nil)
		writeJSON(w, http.StatusOK, op)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, id, action string) {
	ctx := r.Context()
	switch action {
	case "start":
		var in lifecycle.StartInput
		if !decodeJSON(w, r, &in, true) {
			return
		}
		op, err := s.Engine.Start(ctx, id, in, s.now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.emit(ctx, webhooks.EventOperationStarted, op, nil)
		writeJSON(w, http.StatusOK, op)
	case "complete":
		var in lifecycle.CompletionInput
		if !decodeJSON(w, r, &in, true) {
			return
		}
		res, err := s.Engine.Complete(ctx, id, in, s.now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.emit(ctx, webhooks.EventOperationCompleted, res.Operation, map[string]any{"warnings": res.Warnings})
		if res.Alert != nil && res.AlertCreated {
			s.Broker.Publish(res.Alert.VehicleID, SSEEvent{Type: webhooks.EventMaintenanceAlert, Data: map[string]any{
				"alertId":    res.Alert.ID,
				"vehicleId":  res.Alert.VehicleID,
				"type":       res.Alert.Type,
				"severity":   res.Alert.Severity,
				"hours":      res.Alert.Hours,
				"dueAtHours": res.Alert.DueAtHours,
			}})
		}
		writeJSON(w, http.StatusOK, res)
	case "cancel":
		op, err := s.Engine.Cancel(ctx, id, s.now())
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.emit(ctx, webhooks.EventOperationCancelled, op, nil)
		writeJSON(w, http.StatusOK, op)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "unknown action "+action, r.URL.Path)
	}
}

// AvailabilityHandler lists operations that would conflict with a booking.
func (s *Server) AvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	kind := model.ResourceKind(q.Get("kind"))
	id, date := q.Get("id"), q.Get("date")
	if kind != model.ResourceVehicle && kind != model.ResourceOperator {
		writeProblem(w, http.StatusBadRequest, "Invalid kind", "kind must be vehicle or operator", r.URL.Path)
		return
	}
	if id == "" || date == "" {
		writeProblem(w, http.StatusBadRequest, "Missing parameters", "id and date are required", r.URL.Path)
		return
	}
	var window *lifecycle.Window
	if q.Get("start") != "" || q.Get("end") != "" {
		window = &lifecycle.Window{Start: q.Get("start"), End: q.Get("end")}
	}
	ids, err := s.Engine.Availability().FindConflicts(r.Context(), kind, id, date, window, q.Get("exclude"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":      kind,
		"id":        id,
		"date":      date,
		"available": len(ids) == 0,
		"conflicts": ids,
	})
}

// VehiclesHandler serves /v1/vehicles/{id} and /v1/vehicles/{id}/events/stream.
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/v1/vehicles/")
	if len(parts) == 0 {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	id := parts[0]
	if len(parts) == 3 && parts[1] == "events" && parts[2] == "stream" {
		s.streamVehicleEvents(w, r, id)
		return
	}
	if len(parts) != 1 {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		v, err := s.Store.GetVehicle(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	case http.MethodPut:
		if !s.requireManager(w, r) {
			return
		}
		var v model.Vehicle
		if !decodeJSON(w, r, &v, false) {
			return
		}
		v.ID = id
		if err := validateVehicle(v); err != nil {
			writeError(w, r, err)
			return
		}
		saved, err := s.Store.UpsertVehicle(r.Context(), v)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func validateVehicle(v model.Vehicle) error {
	switch v.Status {
	case "", model.VehicleAvailable, model.VehicleInUse, model.VehicleMaintenance, model.VehicleRetired:
	default:
		return &lifecycle.ValidationError{Guard: "vehicle_status", Field: "status", Reason: fmt.Sprintf("unknown status %q", v.Status)}
	}
	checks := []struct {
		field string
		err   error
	}{
		{"currentHours", lifecycle.ValidateEngineHours(v.CurrentHours)},
		{"lastServiceHours", lifecycle.ValidateEngineHours(v.LastServiceHours)},
		{"currentMileage", lifecycle.ValidateMileage(v.CurrentMileage)},
	}
	for _, c := range checks {
		if c.err != nil {
			return &lifecycle.ValidationError{Guard: "vehicle_readings", Field: c.field, Reason: c.err.Error()}
		}
	}
	if v.ServiceIntervalHours < 0 {
		return &lifecycle.ValidationError{Guard: "vehicle_readings", Field: "serviceIntervalHours", Reason: "must not be negative"}
	}
	return nil
}

func (s *Server) streamVehicleEvents(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ok, err := s.Store.VehicleExists(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeProblem(w, http.StatusNotFound, "Vehicle not found", id, r.URL.Path)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"vehicleId\":%q,\"ts\":%q}\n\n", id, time.Now().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		case <-time.After(15 * time.Second):
			heartbeat()
		}
	}
}

// OperatorsHandler upserts /v1/operators/{id}.
func (s *Server) OperatorsHandler(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/v1/operators/")
	if len(parts) != 1 {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requireManager(w, r) {
		return
	}
	var o model.Operator
	if !decodeJSON(w, r, &o, false) {
		return
	}
	o.ID = parts[0]
	saved, err := s.Store.UpsertOperator(r.Context(), o)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// FieldsHandler upserts /v1/fields/{id}.
func (s *Server) FieldsHandler(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/v1/fields/")
	if len(parts) != 1 {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requireManager(w, r) {
		return
	}
	var f model.Field
	if !decodeJSON(w, r, &f, false) {
		return
	}
	f.ID = parts[0]
	if f.AreaHa != nil && *f.AreaHa < 0 {
		writeError(w, r, &lifecycle.ValidationError{Guard: "field_area", Field: "areaHa", Reason: "must not be negative"})
		return
	}
	saved, err := s.Store.UpsertField(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// AlertsHandler lists alerts, optionally by vehicleId and status.
func (s *Server) AlertsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	items, err := s.Store.ListAlerts(r.Context(), q.Get("vehicleId"), q.Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// AlertByIDHandler serves POST /v1/alerts/{id}/resolve.
func (s *Server) AlertByIDHandler(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/v1/alerts/")
	if len(parts) != 2 || parts[1] != "resolve" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requireManager(w, r) {
		return
	}
	a, err := s.Store.ResolveAlert(r.Context(), parts[0])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireManager(w, r) {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		if strings.TrimSpace(req.URL) == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusUnprocessableEntity, "Invalid subscription", "url and events are required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		items, err := s.Store.ListSubscriptions(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		if items == nil {
			items = []model.Subscription{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Subscription delete (admin)
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/v1/subscriptions/")
	if len(parts) != 1 {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requireManager(w, r) {
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), parts[0]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/webhook-deliveries" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requireManager(w, r) {
		return
	}
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), q.Get("status"), q.Get("cursor"), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/v1/admin/webhook-deliveries/")
	if len(parts) != 2 || parts[1] != "retry" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requireManager(w, r) {
		return
	}
	if err := s.Store.RetryWebhookDelivery(r.Context(), parts[0]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using a SQL store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
