package health

import (
	"context"
	"errors"
	"testing"

	"haulboard/internal/model"
	"haulboard/internal/secrets"
	"haulboard/internal/store"
	"haulboard/internal/webhooks"
)

type fakeChecker struct {
	err error
}

func (f fakeChecker) CheckCredentials(ctx context.Context, integ model.Integration) error {
	return f.err
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	codec, err := secrets.NewCodec("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	return store.NewMemory(codec)
}

func TestSweepFlipsFailingIntegration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	integ, err := s.CreateIntegration(ctx, "co_1", model.IntegrationIn{
		Provider:    model.ProviderTruckstop,
		Credentials: map[string]string{"username": "u"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateSubscription(ctx, model.SubscriptionRequest{
		CompanyID: "co_1", URL: "http://example.com/hook", Events: []string{"integration.errored"},
	}); err != nil {
		t.Fatal(err)
	}

	sw := NewSweeper(s, map[model.Provider]CredentialChecker{
		model.ProviderTruckstop: fakeChecker{err: errors.New("missing password")},
	}, webhooks.NewPublisher(s))
	sw.SweepOnce()

	got, err := s.GetIntegration(ctx, "co_1", integ.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "errored" || got.LastError == "" {
		t.Fatalf("integration not flipped: %+v", got)
	}
	due, _ := s.FetchDueAlertDeliveries(ctx, 10)
	if len(due) != 1 || due[0].EventType != "integration.errored" {
		t.Fatalf("alert not enqueued: %+v", due)
	}
}

func TestSweepLeavesHealthyIntegration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	integ, err := s.CreateIntegration(ctx, "co_1", model.IntegrationIn{
		Provider:    model.ProviderDAT,
		Credentials: map[string]string{"username": "u", "password": "p", "email": "e"},
	})
	if err != nil {
		t.Fatal(err)
	}
	sw := NewSweeper(s, map[model.Provider]CredentialChecker{
		model.ProviderDAT: fakeChecker{},
	}, nil)
	sw.SweepOnce()

	got, err := s.GetIntegration(ctx, "co_1", integ.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "active" {
		t.Fatalf("healthy integration should stay active: %+v", got)
	}
}

func TestSweepSkipsUnknownProvider(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	integ, err := s.CreateIntegration(ctx, "co_1", model.IntegrationIn{
		Provider:    "123Loadboard",
		Credentials: map[string]string{"token": "x"},
	})
	if err != nil {
		t.Fatal(err)
	}
	sw := NewSweeper(s, map[model.Provider]CredentialChecker{}, nil)
	sw.SweepOnce()

	got, err := s.GetIntegration(ctx, "co_1", integ.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "active" {
		t.Fatalf("integration without a checker must be left alone: %+v", got)
	}
}
