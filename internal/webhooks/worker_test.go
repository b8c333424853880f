package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fieldops/internal/model"
	"fieldops/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
	Next          *time.Time
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError, Next: nextAttemptAt})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func newTestWorker(rs *recordStore, client *http.Client, max int) *Worker {
	w := NewWorker(rs, max, log.New(io.Discard, "", 0))
	w.HTTP = client
	return w
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, srv.Client(), 3)
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "", EventOperationCompleted, srv.URL, "secret", []byte(`{"id":"evt1"}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce()

	if gotType != EventOperationCompleted {
		t.Fatalf("missing event type header: %q", gotType)
	}
	if !VerifyHMAC("secret", body, gotSig) {
		t.Fatalf("signature %q does not verify", gotSig)
	}
	if len(rs.marks) != 1 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, srv.Client(), 2)
	id, _ := rs.Memory.EnqueueWebhook(context.Background(), "", EventOperationStarted, srv.URL, "", []byte(`{}`))

	w.processOnce()
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].Code != 500 {
		t.Fatalf("expected a retry mark, got: %+v", rs.marks)
	}
	if rs.marks[0].Next == nil || !rs.marks[0].Next.After(time.Now()) {
		t.Fatalf("expected next attempt in the future, got %v", rs.marks[0].Next)
	}

	// Not due yet; force it due and try again.
	if err := rs.Memory.RetryWebhookDelivery(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	w.processOnce()
	if len(rs.fails) != 1 || rs.fails[0].ID != id {
		t.Fatalf("expected fail recorded after max attempts, got: %+v", rs.fails)
	}
}

func TestNextBackoff(t *testing.T) {
	cases := map[int]time.Duration{-1: time.Second, 0: time.Second, 3: 8 * time.Second, 50: 1024 * time.Second}
	for in, want := range cases {
		if got := nextBackoff(in); got != want {
			t.Errorf("nextBackoff(%d) = %v, want %v", in, got, want)
		}
	}
}

func TestPublisherEmitsToMatchingSubscriptions(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	if _, err := m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://a", Events: []string{EventOperationCompleted}}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://b", Events: []string{EventMaintenanceAlert}}); err != nil {
		t.Fatal(err)
	}
	p := NewPublisher(m, log.New(io.Discard, "", 0))
	p.Emit(ctx, EventOperationCompleted, map[string]string{"id": "op1"})

	due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].URL != "http://a" {
		t.Fatalf("expected one delivery to http://a, got %+v", due)
	}
	var env map[string]any
	if err := json.Unmarshal(due[0].Payload, &env); err != nil {
		t.Fatal(err)
	}
	if env["type"] != EventOperationCompleted {
		t.Fatalf("payload type = %v", env["type"])
	}
}

func TestAlertNotifierAnnouncesOnlyNewAlerts(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	if _, err := m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://alerts", Events: []string{EventMaintenanceAlert}}); err != nil {
		t.Fatal(err)
	}
	var logs bytes.Buffer
	n := &AlertNotifier{Alerts: m, Publisher: NewPublisher(m, log.New(&logs, "", 0))}
	req := model.AlertRequest{Type: model.AlertMaintenanceDue, VehicleID: "V1", Severity: model.SeverityWarning}

	first, created, err := n.CreateAlert(ctx, req)
	if err != nil || !created {
		t.Fatalf("first alert: created=%v err=%v", created, err)
	}
	second, created, err := n.CreateAlert(ctx, req)
	if err != nil || created || second.ID != first.ID {
		t.Fatalf("duplicate alert: created=%v id=%s err=%v", created, second.ID, err)
	}
	due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 {
		t.Fatalf("expected exactly one alert delivery, got %d", len(due))
	}
}
