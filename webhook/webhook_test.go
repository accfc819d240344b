package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestDeliverSignsBody(t *testing.T) {
	var (
		mu   sync.Mutex
		got  Event
		ok   bool
		body []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		body = b
		ok = Verify("s3cret", b, r.Header.Get(SignatureHeader))
		_ = json.Unmarshal(b, &got)
	}))
	defer srv.Close()

	ev := NewEvent(EventLookupCompleted, "job-1", map[string]int{"total": 3})
	if err := Deliver(context.Background(), srv.URL, "s3cret", ev); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !ok {
		t.Errorf("signature did not verify for body %s", body)
	}
	if got.Type != EventLookupCompleted || got.JobID != "job-1" {
		t.Errorf("event = %+v", got)
	}
	if Verify("other", body, Sign("s3cret", body)) {
		t.Error("signature verified with the wrong secret")
	}
}

func TestDeliverRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := Deliver(context.Background(), srv.URL, "", NewEvent(EventLookupFailed, "j", nil)); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestDeliverWithRetry(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	delays := []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}
	if err := deliverWithRetry(srv.URL, "", NewEvent(EventLookupCompleted, "j", nil), delays); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}
