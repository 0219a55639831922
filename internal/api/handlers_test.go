package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"haulboard/internal/auth"
	"haulboard/internal/boards"
	"haulboard/internal/config"
	"haulboard/internal/model"
	"haulboard/internal/secrets"
	"haulboard/internal/store"
	"haulboard/internal/webhooks"
)

type fakeAdapter struct {
	provider model.Provider
	loads    []model.NormalizedLoad
	err      error
	credErr  error
}

func (f *fakeAdapter) Provider() model.Provider { return f.provider }

func (f *fakeAdapter) FetchLoads(ctx context.Context, integ model.Integration, filter model.LoadFilter) ([]model.NormalizedLoad, error) {
	return f.loads, f.err
}

func (f *fakeAdapter) CheckCredentials(ctx context.Context, integ model.Integration) error {
	return f.credErr
}

func newTestServer(t *testing.T, adapters ...boards.Adapter) *Server {
	t.Helper()
	codec, err := secrets.NewCodec("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	st := store.NewMemory(codec)
	broker := NewBroker()
	agg := boards.NewAggregator(st, adapters, 0, time.Second)
	agg.Events = broker
	cfg, _ := config.Load("")
	return &Server{
		Cfg:    cfg,
		Store:  st,
		Agg:    agg,
		Pub:    webhooks.NewPublisher(st),
		Auth:   auth.NewVerifier(cfg),
		Broker: broker,
		Status: NewProviderStatusCache(),
	}
}

func doReq(t *testing.T, h http.HandlerFunc, method, path string, body any, role string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("X-Company-Id", "co_1")
	if role == "" {
		role = "admin"
	}
	req.Header.Set("X-Role", role)
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestSearchWithoutIntegrationIsProblem(t *testing.T) {
	s := newTestServer(t)
	w := doReq(t, s.LoadsSearchHandler, http.MethodPost, "/v1/loads/search", model.LoadFilter{}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Detail != "No active loadboard integration available" {
		t.Errorf("detail: %q", p.Detail)
	}
}

func TestSearchAggregatesAndRecordsStatus(t *testing.T) {
	ts := &fakeAdapter{provider: model.ProviderTruckstop, loads: []model.NormalizedLoad{{ID: "L1", Source: model.ProviderTruckstop}}}
	dt := &fakeAdapter{provider: model.ProviderDAT, err: errors.New("DAT org auth failed")}
	s := newTestServer(t, ts, dt)
	ctx := context.Background()
	for _, p := range []model.Provider{model.ProviderTruckstop, model.ProviderDAT} {
		if _, err := s.Store.CreateIntegration(ctx, "co_1", model.IntegrationIn{Provider: p, Credentials: map[string]string{"k": "v"}}); err != nil {
			t.Fatal(err)
		}
	}

	w := doReq(t, s.LoadsSearchHandler, http.MethodPost, "/v1/loads/search", model.LoadFilter{Origin: "Portland, OR"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		SearchID  string                 `json:"searchId"`
		Loads     []model.NormalizedLoad `json:"loads"`
		Providers []model.ProviderStatus `json:"providers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SearchID == "" || len(resp.Loads) != 1 || len(resp.Providers) != 2 {
		t.Fatalf("response: %+v", resp)
	}

	// Status cache is populated for the follow-up endpoint.
	w = doReq(t, s.ProviderStatusHandler, http.MethodGet, "/v1/loads/providers", nil, "user")
	if w.Code != http.StatusOK {
		t.Fatalf("providers status = %d", w.Code)
	}
	var st struct {
		Providers []ProviderSnapshot `json:"providers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if len(st.Providers) != 2 {
		t.Fatalf("snapshots: %+v", st.Providers)
	}
}

func TestSearchRejectsBadFilter(t *testing.T) {
	s := newTestServer(t)
	w := doReq(t, s.LoadsSearchHandler, http.MethodPost, "/v1/loads/search", map[string]any{"pickupDateFrom": "09/02/2026"}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestIntegrationsCRUD(t *testing.T) {
	s := newTestServer(t, &fakeAdapter{provider: model.ProviderTruckstop})

	// Non-admin create is forbidden.
	w := doReq(t, s.IntegrationsHandler, http.MethodPost, "/v1/integrations",
		model.IntegrationIn{Provider: model.ProviderTruckstop, Credentials: map[string]string{"username": "u", "password": "p"}}, "dispatcher")
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin create: %d", w.Code)
	}

	w = doReq(t, s.IntegrationsHandler, http.MethodPost, "/v1/integrations",
		model.IntegrationIn{Provider: model.ProviderTruckstop, Credentials: map[string]string{"username": "u", "password": "p"}}, "admin")
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var created model.Integration
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Credentials != nil {
		t.Error("create response must not echo credentials")
	}

	// Unknown provider is rejected up front.
	w = doReq(t, s.IntegrationsHandler, http.MethodPost, "/v1/integrations",
		model.IntegrationIn{Provider: "Uber Freight", Credentials: map[string]string{"k": "v"}}, "admin")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown provider create: %d", w.Code)
	}

	// Duplicate active integration conflicts.
	w = doReq(t, s.IntegrationsHandler, http.MethodPost, "/v1/integrations",
		model.IntegrationIn{Provider: model.ProviderTruckstop, Credentials: map[string]string{"username": "u", "password": "p"}}, "admin")
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate create: %d", w.Code)
	}

	w = doReq(t, s.IntegrationByIDHandler, http.MethodPatch, "/v1/integrations/"+created.ID, map[string]string{"status": "disabled"}, "admin")
	if w.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", w.Code, w.Body.String())
	}

	w = doReq(t, s.IntegrationByIDHandler, http.MethodDelete, "/v1/integrations/"+created.ID, nil, "admin")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	w = doReq(t, s.IntegrationByIDHandler, http.MethodGet, "/v1/integrations/"+created.ID, nil, "admin")
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", w.Code)
	}
}

func TestIntegrationTestEndpoint(t *testing.T) {
	bad := &fakeAdapter{provider: model.ProviderDAT, credErr: errors.New("DAT integration is missing org credentials or user email")}
	s := newTestServer(t, bad)
	integ, err := s.Store.CreateIntegration(context.Background(), "co_1",
		model.IntegrationIn{Provider: model.ProviderDAT, Credentials: map[string]string{"username": "u"}})
	if err != nil {
		t.Fatal(err)
	}
	w := doReq(t, s.IntegrationByIDHandler, http.MethodPost, "/v1/integrations/"+integ.ID+"/test", nil, "admin")
	if w.Code != http.StatusOK {
		t.Fatalf("test: %d %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["ok"] != false || resp["error"] == "" {
		t.Fatalf("test response: %+v", resp)
	}
}

func TestProviderCredentialsAdmin(t *testing.T) {
	s := newTestServer(t)

	w := doReq(t, s.ProviderCredentialsHandler, http.MethodPut, "/v1/admin/providers/Truckstop/credentials",
		map[string]string{"key": "integration_id", "value": "98765"}, "user")
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin put: %d", w.Code)
	}

	w = doReq(t, s.ProviderCredentialsHandler, http.MethodPut, "/v1/admin/providers/Truckstop/credentials",
		map[string]string{"key": "integration_id", "value": "98765"}, "admin")
	if w.Code != http.StatusOK {
		t.Fatalf("put: %d %s", w.Code, w.Body.String())
	}

	w = doReq(t, s.ProviderCredentialsHandler, http.MethodGet, "/v1/admin/providers/Truckstop/credentials?key=integration_id", nil, "admin")
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["set"] != true {
		t.Fatalf("get response: %+v", resp)
	}
	if _, leaked := resp["value"]; leaked {
		t.Error("credential value must not be echoed")
	}

	w = doReq(t, s.ProviderCredentialsHandler, http.MethodPut, "/v1/admin/providers/CHRobinson/credentials",
		map[string]string{"key": "k", "value": "v"}, "admin")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown provider: %d", w.Code)
	}
}

func TestSubscriptionsEndpoints(t *testing.T) {
	s := newTestServer(t)
	w := doReq(t, s.SubscriptionsHandler, http.MethodPost, "/v1/alerts/subscriptions",
		model.SubscriptionRequest{URL: "http://example.com/hook", Events: []string{"integration.errored"}, Secret: "x"}, "admin")
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var sub model.Subscription
	_ = json.Unmarshal(w.Body.Bytes(), &sub)
	if sub.Secret != "" {
		t.Error("create response must not echo the secret")
	}

	w = doReq(t, s.SubscriptionsHandler, http.MethodGet, "/v1/alerts/subscriptions", nil, "admin")
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}

	w = doReq(t, s.SubscriptionByIDHandler, http.MethodDelete, "/v1/alerts/subscriptions/"+sub.ID, nil, "admin")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
}

func TestBoardMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	_ = s.Store.RecordFetchAudit(context.Background(), model.FetchAudit{
		CompanyID: "co_1", Provider: model.ProviderTruckstop, Count: 12,
		TS: time.Now().UTC().Format(time.RFC3339),
	})
	w := doReq(t, s.BoardMetricsHandler, http.MethodGet, "/v1/admin/board-metrics", nil, "admin")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Items []model.FetchAudit `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Count != 12 {
		t.Fatalf("items: %+v", resp.Items)
	}
}
