package boards

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"haulboard/internal/metrics"
	"haulboard/internal/model"
)

// IntegrationSource is the slice of the store the aggregator needs.
type IntegrationSource interface {
	ListActiveIntegrations(ctx context.Context, companyID string) ([]model.Integration, error)
	RecordFetchAudit(ctx context.Context, audit model.FetchAudit) error
}

// Event is a search lifecycle event published while a search runs, consumed
// by the live-stream endpoint.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// EventSink receives search events keyed by search id.
type EventSink interface {
	Publish(searchID string, evt Event)
}

// Aggregator fans a load search out across a company's active provider
// integrations. Each provider call runs in its own goroutine with its own
// timeout; one provider failing or stalling never blocks the others.
type Aggregator struct {
	Integrations IntegrationSource
	Adapters     map[model.Provider]Adapter
	Events       EventSink
	Timeout      time.Duration

	limiters map[model.Provider]*rate.Limiter
}

// NewAggregator wires adapters over an integration source. perProviderRPS
// throttles outbound calls per provider; zero disables throttling.
func NewAggregator(src IntegrationSource, adapters []Adapter, perProviderRPS float64, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	a := &Aggregator{
		Integrations: src,
		Adapters:     map[model.Provider]Adapter{},
		Timeout:      timeout,
		limiters:     map[model.Provider]*rate.Limiter{},
	}
	for _, ad := range adapters {
		a.Adapters[ad.Provider()] = ad
		if perProviderRPS > 0 {
			a.limiters[ad.Provider()] = rate.NewLimiter(rate.Limit(perProviderRPS), 1)
		}
	}
	return a
}

type outcome struct {
	idx    int
	status model.ProviderStatus
	loads  []model.NormalizedLoad
}

// Search returns the combined normalized loads from every active integration
// of the company plus a per-provider status. A company without any active
// integration gets ErrNoIntegrations before any network call. Integrations
// for providers this build does not know are skipped silently.
//
// searchID keys the lifecycle events on the sink; pass "" to skip publishing.
func (a *Aggregator) Search(ctx context.Context, companyID string, filter model.LoadFilter, searchID string) (model.SearchResult, error) {
	integs, err := a.Integrations.ListActiveIntegrations(ctx, companyID)
	if err != nil {
		return model.SearchResult{}, fmt.Errorf("list integrations: %w", err)
	}
	if len(integs) == 0 {
		return model.SearchResult{}, ErrNoIntegrations
	}

	dispatched := 0
	results := make(chan outcome, len(integs))
	for i, integ := range integs {
		ad, ok := a.Adapters[integ.Provider]
		if !ok {
			continue
		}
		dispatched++
		go a.fetchOne(ctx, i, ad, integ, filter, results)
	}

	res := model.SearchResult{Loads: []model.NormalizedLoad{}}
	byIdx := map[int]outcome{}
	for n := 0; n < dispatched; n++ {
		o := <-results
		byIdx[o.idx] = o
	}
	// Keep integration order stable in the response.
	for i := range integs {
		o, ok := byIdx[i]
		if !ok {
			continue
		}
		res.Loads = append(res.Loads, o.loads...)
		res.Providers = append(res.Providers, o.status)
		a.audit(companyID, o.status)
		a.publish(searchID, "search.provider.done", map[string]any{
			"provider": o.status.Provider,
			"count":    o.status.Count,
			"error":    o.status.Error,
		})
	}
	a.publish(searchID, "search.done", map[string]any{
		"total":     len(res.Loads),
		"providers": len(res.Providers),
	})
	return res, nil
}

func (a *Aggregator) fetchOne(ctx context.Context, idx int, ad Adapter, integ model.Integration, filter model.LoadFilter, out chan<- outcome) {
	start := time.Now()
	o := outcome{idx: idx, status: model.ProviderStatus{Provider: integ.Provider}}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("boards: %s fetch panicked: %v", integ.Provider, r)
			o.loads = nil
			o.status.Error = "internal provider failure"
		}
		o.status.Millis = time.Since(start).Milliseconds()
		st := "ok"
		if o.status.Error != "" {
			st = "error"
		}
		metrics.BoardFetches.WithLabelValues(string(integ.Provider), st).Inc()
		metrics.BoardFetchLatency.WithLabelValues(string(integ.Provider)).Observe(time.Since(start).Seconds())
		out <- o
	}()

	cctx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()
	if lim := a.limiters[integ.Provider]; lim != nil {
		if err := lim.Wait(cctx); err != nil {
			o.status.Error = err.Error()
			return
		}
	}
	loads, err := ad.FetchLoads(cctx, integ, filter)
	if err != nil {
		log.Printf("boards: %s fetch for company %s failed: %v", integ.Provider, integ.CompanyID, err)
		o.status.Error = err.Error()
		return
	}
	o.loads = loads
	o.status.Count = len(loads)
}

func (a *Aggregator) audit(companyID string, st model.ProviderStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = a.Integrations.RecordFetchAudit(ctx, model.FetchAudit{
		CompanyID: companyID,
		Provider:  st.Provider,
		Count:     st.Count,
		Error:     st.Error,
		Millis:    st.Millis,
		TS:        time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *Aggregator) publish(searchID, typ string, data map[string]any) {
	if a.Events == nil || searchID == "" {
		return
	}
	a.Events.Publish(searchID, Event{Type: typ, Data: data})
}
