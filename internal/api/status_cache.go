package api

import (
	"sync"
	"time"

	"haulboard/internal/model"
)

// ProviderSnapshot holds the latest observed outcome of one provider fetch
// for a company.
type ProviderSnapshot struct {
	Company  string         `json:"companyId"`
	Provider model.Provider `json:"provider"`
	Count    int            `json:"count"`
	Error    string         `json:"error,omitempty"`
	Millis   int64          `json:"millis"`
	TS       string         `json:"ts"`
}

// ProviderStatusCache stores the latest fetch outcome per company/provider.
type ProviderStatusCache struct {
	mu sync.Mutex
	// key: company|provider
	m map[string]ProviderSnapshot
}

// NewProviderStatusCache constructs a ProviderStatusCache.
func NewProviderStatusCache() *ProviderStatusCache {
	return &ProviderStatusCache{m: map[string]ProviderSnapshot{}}
}

func (c *ProviderStatusCache) key(company string, p model.Provider) string {
	return company + "|" + string(p)
}

// Record stores the outcome of one provider fetch.
func (c *ProviderStatusCache) Record(company string, st model.ProviderStatus) {
	if company == "" || st.Provider == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[c.key(company, st.Provider)] = ProviderSnapshot{
		Company:  company,
		Provider: st.Provider,
		Count:    st.Count,
		Error:    st.Error,
		Millis:   st.Millis,
		TS:       time.Now().UTC().Format(time.RFC3339),
	}
}

// ListByCompany returns the latest snapshots for a company.
func (c *ProviderStatusCache) ListByCompany(company string) []ProviderSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []ProviderSnapshot{}
	prefix := company + "|"
	for k, v := range c.m {
		// simple prefix match
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, v)
		}
	}
	return out
}
