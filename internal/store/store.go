package store

import (
	"context"
	"errors"
	"time"

	"haulboard/internal/model"
)

// Store is the persistence interface used by the API server and workers.
// Credential blobs are sealed at rest; ListActiveIntegrations and
// GetIntegration return them decrypted, ListIntegrations redacts them.
type Store interface {
	// Integrations
	CreateIntegration(ctx context.Context, companyID string, in model.IntegrationIn) (model.Integration, error)
	ListIntegrations(ctx context.Context, companyID string) ([]model.Integration, error)
	ListActiveIntegrations(ctx context.Context, companyID string) ([]model.Integration, error)
	ListAllActiveIntegrations(ctx context.Context) ([]model.Integration, error)
	GetIntegration(ctx context.Context, companyID, id string) (model.Integration, error)
	SetIntegrationStatus(ctx context.Context, companyID, id, status, lastError string) (model.Integration, error)
	DeleteIntegration(ctx context.Context, companyID, id string) error

	// Provider-level shared credentials (e.g. Truckstop IntegrationID)
	SetGlobalCredential(ctx context.Context, provider model.Provider, key, value string) error
	GetGlobalCredential(ctx context.Context, provider model.Provider, key string) (string, error)

	// Provider fetch audit trail
	RecordFetchAudit(ctx context.Context, audit model.FetchAudit) error
	ListFetchAudits(ctx context.Context, companyID string, since time.Time, limit int) ([]model.FetchAudit, error)

	// Alert subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, companyID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, companyID string) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, companyID, id string) error

	// Alert deliveries
	EnqueueAlert(ctx context.Context, companyID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueAlertDeliveries(ctx context.Context, limit int) ([]AlertDelivery, error)
	MarkAlertDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailAlertDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListAlertDeliveries(ctx context.Context, companyID, status string, limit int) ([]map[string]any, error)
}

var ErrNotFound = errors.New("not found")

// ErrDuplicateIntegration enforces the one-active-integration-per-provider
// invariant.
var ErrDuplicateIntegration = errors.New("an active integration already exists for this provider")
