package boards

import (
	"context"
	"errors"
	"fmt"

	"haulboard/internal/model"
)

// Adapter is the minimal interface a load-board provider integration
// implements. FetchLoads receives the integration with its credential blob
// already decrypted and must honor ctx cancellation on every network call.
type Adapter interface {
	Provider() model.Provider
	FetchLoads(ctx context.Context, integ model.Integration, filter model.LoadFilter) ([]model.NormalizedLoad, error)
}

// GlobalCredentialSource resolves provider-level account identifiers that are
// shared across tenants (e.g. Truckstop's IntegrationID).
type GlobalCredentialSource interface {
	GetGlobalCredential(ctx context.Context, provider model.Provider, key string) (string, error)
}

// ErrNoIntegrations is returned when a company has no active load-board
// integration. The message is part of the API contract.
var ErrNoIntegrations = errors.New("No active loadboard integration available")

// ConfigError marks a misconfigured integration (missing credentials or
// global ids). Never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

// StatusError carries a non-2xx upstream response.
type StatusError struct {
	Provider model.Provider
	Step     string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Step, e.Status, truncate(e.Body, 200))
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, truncate(e.Body, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
