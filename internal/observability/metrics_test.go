package observability

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMetrics_SpansAggregatePerKind(t *testing.T) {
	t.Parallel()
	m := NewMetrics()

	span := m.Start("ReserveCredit")
	span.End(nil)
	span = m.Start("ReserveCredit")
	span.End(errors.New("boom"))
	span = m.Start("SendInvoice")
	span.End(nil)

	snap := m.Snapshot()
	if snap.TotalMessages != 3 {
		t.Fatalf("expected 3 messages, got %d", snap.TotalMessages)
	}
	if snap.TotalErrors != 1 {
		t.Fatalf("expected 1 error, got %d", snap.TotalErrors)
	}
	if snap.InFlight != 0 {
		t.Fatalf("expected no in-flight spans, got %d", snap.InFlight)
	}

	reserve := snap.Kinds["ReserveCredit"]
	if reserve.Count != 2 || reserve.Errors != 1 {
		t.Fatalf("unexpected ReserveCredit stats: %+v", reserve)
	}
	invoice := snap.Kinds["SendInvoice"]
	if invoice.Count != 1 || invoice.Errors != 0 {
		t.Fatalf("unexpected SendInvoice stats: %+v", invoice)
	}
}

func TestMetrics_InFlightTracking(t *testing.T) {
	t.Parallel()
	m := NewMetrics()

	span := m.Start("ReserveCredit")
	snap := m.Snapshot()
	if snap.InFlight != 1 {
		t.Fatalf("expected one in-flight span, got %d", snap.InFlight)
	}
	span.End(nil)
	snap = m.Snapshot()
	if snap.InFlight != 0 {
		t.Fatalf("expected span finished, got %d in flight", snap.InFlight)
	}
}

func TestMetrics_SagaOutcomes(t *testing.T) {
	t.Parallel()
	m := NewMetrics()

	m.AddCompleted()
	m.AddCompleted()
	m.AddDenied()
	m.AddFailed()
	m.AddDropped()

	snap := m.Snapshot()
	if snap.Sagas.Completed != 2 || snap.Sagas.Denied != 1 || snap.Sagas.Failed != 1 || snap.Sagas.Dropped != 1 {
		t.Fatalf("unexpected saga counters: %+v", snap.Sagas)
	}
}

func TestMetrics_RateLimitWaits(t *testing.T) {
	t.Parallel()
	m := NewMetrics()

	m.AddRateLimitWait(150 * time.Millisecond)
	m.AddRateLimitWait(50 * time.Millisecond)
	m.AddRateLimitWait(0) // ignored

	snap := m.Snapshot()
	if snap.RateLimitWaits != 2 {
		t.Fatalf("expected 2 waits, got %d", snap.RateLimitWaits)
	}
	if snap.RateLimitWaitMs != 200 {
		t.Fatalf("expected 200ms waited, got %d", snap.RateLimitWaitMs)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()
	var m *Metrics

	span := m.Start("ReserveCredit")
	span.End(nil)
	m.AddCompleted()
	m.AddRateLimitWait(time.Second)

	if snap := m.Snapshot(); snap.TotalMessages != 0 {
		t.Fatalf("nil metrics must be inert, got %+v", snap)
	}
}

func TestHandler_ServesSnapshot(t *testing.T) {
	t.Parallel()
	m := NewMetrics()
	m.AddCompleted()
	span := m.Start("ReserveCredit")
	span.End(nil)

	rec := httptest.NewRecorder()
	Handler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	var snap Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Sagas.Completed != 1 || snap.TotalMessages != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
