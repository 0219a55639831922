package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"haulboard/internal/model"
	"haulboard/internal/secrets"
	"haulboard/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	codec, err := secrets.NewCodec("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	return store.NewMemory(codec)
}

func TestWorkerDeliversWithSignature(t *testing.T) {
	var hits int32
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestStore(t)
	ctx := context.Background()
	payload := []byte(`{"type":"integration.errored"}`)
	id, err := s.EnqueueAlert(ctx, "co_1", "sub_1", "integration.errored", srv.URL, "s3cret", payload)
	if err != nil {
		t.Fatal(err)
	}

	w := NewWorker(s, 3)
	w.processOnce()

	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("want 1 delivery, got %d", hits)
	}
	if gotType != "integration.errored" {
		t.Errorf("event type header: %q", gotType)
	}
	if !VerifyHMAC("s3cret", gotBody, gotSig) {
		t.Errorf("signature did not verify: %q", gotSig)
	}
	items, _ := s.ListAlertDeliveries(ctx, "co_1", "delivered", 10)
	if len(items) != 1 || items[0]["id"] != id {
		t.Fatalf("delivery not marked delivered: %+v", items)
	}
	// A delivered item must not be fetched again.
	due, _ := s.FetchDueAlertDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("delivered item still due: %+v", due)
	}
}

func TestWorkerRetriesThenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.EnqueueAlert(ctx, "co_1", "sub_1", "search.done", srv.URL, "", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}

	w := NewWorker(s, 1)
	w.processOnce()

	items, _ := s.ListAlertDeliveries(ctx, "co_1", "failed", 10)
	if len(items) != 1 {
		t.Fatalf("want a terminally failed delivery, got %+v", items)
	}
}

func TestPublisherEnqueuesPerSubscription(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateSubscription(ctx, model.SubscriptionRequest{CompanyID: "co_1", URL: "http://a.example", Events: []string{"integration.errored"}, Secret: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateSubscription(ctx, model.SubscriptionRequest{CompanyID: "co_1", URL: "http://b.example", Events: []string{"*"}}); err != nil {
		t.Fatal(err)
	}
	// Different event, must not match the first subscription.
	p := NewPublisher(s)
	p.Emit(ctx, "co_1", "integration.errored", map[string]any{"integrationId": "i1"})

	due, _ := s.FetchDueAlertDeliveries(ctx, 10)
	if len(due) != 2 {
		t.Fatalf("want 2 enqueued deliveries, got %d", len(due))
	}
	p.Emit(ctx, "co_1", "search.done", nil)
	due, _ = s.FetchDueAlertDeliveries(ctx, 10)
	if len(due) != 3 {
		t.Fatalf("wildcard should pick up other events, got %d", len(due))
	}
}
