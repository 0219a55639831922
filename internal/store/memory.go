package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"haulboard/internal/model"
	"haulboard/internal/secrets"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	codec *secrets.Codec

	mu          sync.Mutex
	integs      map[string]*memIntegration // id -> integration
	integsByCo  map[string][]string        // company -> integration ids
	globals     map[string]string          // provider|key -> value
	audits      []model.FetchAudit         // newest appended last
	subs        map[string][]model.Subscription
	deliveries  map[string]*memDelivery // id -> delivery state
	deliveryIDs []string                // insertion order
}

// memIntegration keeps the sealed blob alongside the public fields.
type memIntegration struct {
	model.Integration
	SealedCredentials string
}

// memDelivery augments AlertDelivery with scheduling/metrics
type memDelivery struct {
	AlertDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func NewMemory(codec *secrets.Codec) *Memory {
	return &Memory{
		codec:      codec,
		integs:     map[string]*memIntegration{},
		integsByCo: map[string][]string{},
		globals:    map[string]string{},
		subs:       map[string][]model.Subscription{},
		deliveries: map[string]*memDelivery{},
	}
}

func (m *Memory) CreateIntegration(ctx context.Context, companyID string, in model.IntegrationIn) (model.Integration, error) {
	sealed, err := m.codec.Seal(in.Credentials)
	if err != nil {
		return model.Integration{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	status := in.Status
	if status == "" {
		status = "active"
	}
	if status == "active" {
		for _, id := range m.integsByCo[companyID] {
			if it := m.integs[id]; it != nil && it.Provider == in.Provider && it.Status == "active" {
				return model.Integration{}, ErrDuplicateIntegration
			}
		}
	}
	integ := model.Integration{ID: uuid.New().String(), CompanyID: companyID, Provider: in.Provider, Status: status}
	m.integs[integ.ID] = &memIntegration{Integration: integ, SealedCredentials: sealed}
	m.integsByCo[companyID] = append(m.integsByCo[companyID], integ.ID)
	return integ, nil
}

func (m *Memory) ListIntegrations(ctx context.Context, companyID string) ([]model.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Integration{}
	for _, id := range m.integsByCo[companyID] {
		if it := m.integs[id]; it != nil {
			out = append(out, it.Integration)
		}
	}
	return out, nil
}

func (m *Memory) ListActiveIntegrations(ctx context.Context, companyID string) ([]model.Integration, error) {
	m.mu.Lock()
	sealedByID := map[string]model.Integration{}
	blobs := map[string]string{}
	for _, id := range m.integsByCo[companyID] {
		if it := m.integs[id]; it != nil && it.Status == "active" {
			sealedByID[id] = it.Integration
			blobs[id] = it.SealedCredentials
		}
	}
	order := append([]string(nil), m.integsByCo[companyID]...)
	m.mu.Unlock()

	out := []model.Integration{}
	for _, id := range order {
		integ, ok := sealedByID[id]
		if !ok {
			continue
		}
		creds, err := m.codec.Open(blobs[id])
		if err != nil {
			return nil, err
		}
		integ.Credentials = creds
		out = append(out, integ)
	}
	return out, nil
}

func (m *Memory) ListAllActiveIntegrations(ctx context.Context) ([]model.Integration, error) {
	m.mu.Lock()
	companies := make([]string, 0, len(m.integsByCo))
	for co := range m.integsByCo {
		companies = append(companies, co)
	}
	m.mu.Unlock()
	sort.Strings(companies)
	out := []model.Integration{}
	for _, co := range companies {
		integs, err := m.ListActiveIntegrations(ctx, co)
		if err != nil {
			return nil, err
		}
		out = append(out, integs...)
	}
	return out, nil
}

func (m *Memory) GetIntegration(ctx context.Context, companyID, id string) (model.Integration, error) {
	m.mu.Lock()
	it := m.integs[id]
	if it == nil || it.CompanyID != companyID {
		m.mu.Unlock()
		return model.Integration{}, ErrNotFound
	}
	integ := it.Integration
	sealed := it.SealedCredentials
	m.mu.Unlock()
	creds, err := m.codec.Open(sealed)
	if err != nil {
		return model.Integration{}, err
	}
	integ.Credentials = creds
	return integ, nil
}

func (m *Memory) SetIntegrationStatus(ctx context.Context, companyID, id, status, lastError string) (model.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.integs[id]
	if it == nil || it.CompanyID != companyID {
		return model.Integration{}, ErrNotFound
	}
	if status == "active" && it.Status != "active" {
		for _, oid := range m.integsByCo[companyID] {
			if other := m.integs[oid]; other != nil && oid != id && other.Provider == it.Provider && other.Status == "active" {
				return model.Integration{}, ErrDuplicateIntegration
			}
		}
	}
	it.Status = status
	it.LastError = lastError
	return it.Integration, nil
}

func (m *Memory) DeleteIntegration(ctx context.Context, companyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.integs[id]
	if it == nil || it.CompanyID != companyID {
		return ErrNotFound
	}
	delete(m.integs, id)
	ids := m.integsByCo[companyID]
	for i, v := range ids {
		if v == id {
			m.integsByCo[companyID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) SetGlobalCredential(ctx context.Context, provider model.Provider, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globals[string(provider)+"|"+key] = value
	return nil
}

func (m *Memory) GetGlobalCredential(ctx context.Context, provider model.Provider, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.globals[string(provider)+"|"+key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) RecordFetchAudit(ctx context.Context, audit model.FetchAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, audit)
	return nil
}

func (m *Memory) ListFetchAudits(ctx context.Context, companyID string, since time.Time, limit int) ([]model.FetchAudit, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.FetchAudit{}
	for i := len(m.audits) - 1; i >= 0 && len(out) < limit; i-- {
		a := m.audits[i]
		if a.CompanyID != companyID {
			continue
		}
		if !since.IsZero() {
			if ts, err := time.Parse(time.RFC3339, a.TS); err == nil && ts.Before(since) {
				continue
			}
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), CompanyID: req.CompanyID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.CompanyID] = append(m.subs[req.CompanyID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, companyID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, s := range m.subs[companyID] {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, companyID string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.Subscription{}, m.subs[companyID]...)
	for i := range out {
		out[i].Secret = ""
	}
	return out, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, companyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[companyID]
	for i, s := range subs {
		if s.ID == id {
			m.subs[companyID] = append(subs[:i], subs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) EnqueueAlert(ctx context.Context, companyID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		AlertDelivery: AlertDelivery{
			ID: id, CompanyID: companyID, SubscriptionID: subscriptionID,
			EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending",
		},
		NextAttemptAt: time.Now(),
	}
	m.deliveryIDs = append(m.deliveryIDs, id)
	return id, nil
}

func (m *Memory) FetchDueAlertDeliveries(ctx context.Context, limit int) ([]AlertDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []AlertDelivery{}
	for _, id := range m.deliveryIDs {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			out = append(out, d.AlertDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkAlertDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
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
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
	} else {
		d.Status = "retry"
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = time.Now().Add(1 * time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailAlertDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d != nil {
		d.Status = "failed"
		d.LastError = lastError
		d.ResponseCode = responseCode
		d.LatencyMs = latencyMs
	}
	return nil
}

func (m *Memory) ListAlertDeliveries(ctx context.Context, companyID, status string, limit int) ([]map[string]any, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for i := len(m.deliveryIDs) - 1; i >= 0 && len(out) < limit; i-- {
		d := m.deliveries[m.deliveryIDs[i]]
		if d == nil || d.CompanyID != companyID {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, map[string]any{
			"id": d.ID, "eventType": d.EventType, "url": d.URL, "status": d.Status,
			"attempts": d.Attempts, "lastError": d.LastError, "responseCode": d.ResponseCode,
			"latencyMs": d.LatencyMs,
		})
	}
	return out, nil
}
