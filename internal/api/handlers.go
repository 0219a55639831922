package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"haulboard/internal/model"
)

// LoadsSearchHandler handles POST /v1/loads/search. It fans the search out to
// every active provider integration and returns the combined loads plus a
// per-provider status. Callers streaming progress pass ?searchId= matching
// their stream subscription; otherwise a fresh id is generated.
func (s *Server) LoadsSearchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, company := s.withCompany(r)
	var filter model.LoadFilter
	if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateLoadFilter(&filter); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid search filter", err.Error(), r.URL.Path)
		return
	}
	searchID := r.URL.Query().Get("searchId")
	if searchID == "" {
		searchID = uuid.NewString()
	}
	res, err := s.Agg.Search(ctx, company, filter, searchID)
	if err != nil {
		writeStoreError(w, err, r.URL.Path)
		return
	}
	for _, st := range res.Providers {
		s.Status.Record(company, st)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"searchId":  searchID,
		"loads":     res.Loads,
		"providers": res.Providers,
	})
}

// ProviderStatusHandler handles GET /v1/loads/providers: the latest fetch
// outcome per provider for the caller's company.
func (s *Server) ProviderStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, company := s.withCompany(r)
	writeJSON(w, http.StatusOK, map[string]any{"providers": s.Status.ListByCompany(company)})
}

// IntegrationsHandler handles POST/GET /v1/integrations
func (s *Server) IntegrationsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, company := s.withCompany(r)
	switch r.Method {
	case http.MethodPost:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var in model.IntegrationIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateIntegrationIn(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid integration", err.Error(), r.URL.Path)
			return
		}
		integ, err := s.Store.CreateIntegration(ctx, company, in)
		if err != nil {
			writeStoreError(w, err, r.URL.Path)
			return
		}
		integ.Credentials = nil
		writeJSON(w, http.StatusCreated, integ)
	case http.MethodGet:
		items, err := s.Store.ListIntegrations(ctx, company)
		if err != nil {
			writeStoreError(w, err, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// IntegrationByIDHandler handles GET/PATCH/DELETE /v1/integrations/{id} and
// POST /v1/integrations/{id}/test
func (s *Server) IntegrationByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/integrations/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	ctx, company := s.withCompany(r)

	if len(parts) > 1 && parts[1] == "test" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.testIntegration(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		integ, err := s.Store.GetIntegration(ctx, company, id)
		if err != nil {
			writeStoreError(w, err, r.URL.Path)
			return
		}
		integ.Credentials = nil
		writeJSON(w, http.StatusOK, integ)
	case http.MethodPatch:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		switch body.Status {
		case "active", "disabled", "errored":
		default:
			writeProblem(w, http.StatusBadRequest, "Invalid status", "status must be active, disabled or errored", r.URL.Path)
			return
		}
		integ, err := s.Store.SetIntegrationStatus(ctx, company, id, body.Status, "")
		if err != nil {
			writeStoreError(w, err, r.URL.Path)
			return
		}
		integ.Credentials = nil
		writeJSON(w, http.StatusOK, integ)
	case http.MethodDelete:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		if err := s.Store.DeleteIntegration(ctx, company, id); err != nil {
			writeStoreError(w, err, r.URL.Path)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// testIntegration runs the provider's credential check against the stored,
// decrypted credential blob without performing a search.
func (s *Server) testIntegration(w http.ResponseWriter, r *http.Request, id string) {
	ctx, company := s.withCompany(r)
	integ, err := s.Store.GetIntegration(ctx, company, id)
	if err != nil {
		writeStoreError(w, err, r.URL.Path)
		return
	}
	ad, ok := s.Agg.Adapters[integ.Provider]
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Unknown provider", string(integ.Provider), r.URL.Path)
		return
	}
	res := map[string]any{"ok": true}
	if c, ok := ad.(credentialChecker); ok {
		if err := c.CheckCredentials(ctx, integ); err != nil {
			res["ok"] = false
			res["error"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, res)
}

// credentialChecker is implemented by adapters that can verify an
// integration's credential set without running a search.
type credentialChecker interface {
	CheckCredentials(ctx context.Context, integ model.Integration) error
}

// ProviderCredentialsHandler handles PUT/GET /v1/admin/providers/{provider}/credentials
func (s *Server) ProviderCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/providers/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "credentials" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	provider := model.Provider(parts[0])
	if !model.KnownProvider(provider) {
		writeProblem(w, http.StatusBadRequest, "Unknown provider", parts[0], r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var body struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Key == "" || body.Value == "" {
			writeProblem(w, http.StatusBadRequest, "Missing key or value", "", r.URL.Path)
			return
		}
		if err := s.Store.SetGlobalCredential(r.Context(), provider, body.Key, body.Value); err != nil {
			writeStoreError(w, err, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case http.MethodGet:
		key := r.URL.Query().Get("key")
		if key == "" {
			writeProblem(w, http.StatusBadRequest, "Missing key", "", r.URL.Path)
			return
		}
		v, err := s.Store.GetGlobalCredential(r.Context(), provider, key)
		if err != nil {
			writeStoreError(w, err, r.URL.Path)
			return
		}
		// Never echo the value back, only whether it is set.
		writeJSON(w, http.StatusOK, map[string]any{"key": key, "set": v != ""})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// BoardMetricsHandler handles GET /v1/admin/board-metrics: the recent provider
// fetch audit trail for the caller's company.
func (s *Server) BoardMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	ctx, company := s.withCompany(r)
	sinceMin := 24 * 60
	if v := r.URL.Query().Get("sinceMinutes"); v != "" {
		fmt.Sscanf(v, "%d", &sinceMin)
	}
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	audits, err := s.Store.ListFetchAudits(ctx, company, time.Now().Add(-time.Duration(sinceMin)*time.Minute), limit)
	if err != nil {
		writeStoreError(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": audits})
}

// SubscriptionsHandler handles POST/GET /v1/alerts/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, company := s.withCompany(r)
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Missing url or events", "", r.URL.Path)
			return
		}
		req.CompanyID = company
		sub, err := s.Store.CreateSubscription(ctx, req)
		if err != nil {
			writeStoreError(w, err, r.URL.Path)
			return
		}
		sub.Secret = ""
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		items, err := s.Store.ListSubscriptions(ctx, company)
		if err != nil {
			writeStoreError(w, err, r.URL.Path)
			return
		}
		for i := range items {
			items[i].Secret = ""
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/alerts/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/alerts/subscriptions/")
	if id == r.URL.Path || id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, company := s.withCompany(r)
	if err := s.Store.DeleteSubscription(ctx, company, id); err != nil {
		writeStoreError(w, err, r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AlertDeliveriesHandler handles GET /v1/admin/alerts/deliveries
func (s *Server) AlertDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	ctx, company := s.withCompany(r)
	status := r.URL.Query().Get("status")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, err := s.Store.ListAlertDeliveries(ctx, company, status, limit)
	if err != nil {
		writeStoreError(w, err, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler handles GET /readyz
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
