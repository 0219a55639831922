package model

// Core domain types for the load-board aggregation service.

// Provider identifies an external load board.
type Provider string

const (
	ProviderTruckstop Provider = "Truckstop"
	ProviderDAT       Provider = "DAT"
)

// KnownProvider reports whether p is a provider this service can dispatch to.
func KnownProvider(p Provider) bool {
	return p == ProviderTruckstop || p == ProviderDAT
}

// Integration is a company's configured connection to one load-board
// provider. Credentials holds the decrypted key-value blob; at rest the blob
// is AES-GCM sealed (see internal/secrets).
type Integration struct {
	ID          string            `json:"id"`
	CompanyID   string            `json:"companyId"`
	Provider    Provider          `json:"provider"`
	Status      string            `json:"status"` // active, disabled, errored
	Credentials map[string]string `json:"credentials,omitempty"`
	LastError   string            `json:"lastError,omitempty"`
}

// IntegrationIn is the create/update payload for an integration.
type IntegrationIn struct {
	Provider    Provider          `json:"provider"`
	Credentials map[string]string `json:"credentials"`
	Status      string            `json:"status,omitempty"`
}

// GlobalCredential is an account-level identifier shared across tenants for
// one provider, e.g. Truckstop's IntegrationID.
type GlobalCredential struct {
	Provider Provider `json:"provider"`
	Key      string   `json:"key"`
	Value    string   `json:"value"`
}

// LoadFilter is the caller-supplied search filter. All fields are optional;
// adapters apply provider-specific defaults for anything unset.
type LoadFilter struct {
	Origin          string   `json:"origin,omitempty"`      // "City, ST", "ST", or "USA"
	Destination     string   `json:"destination,omitempty"` // same forms as Origin
	PickupDateFrom  string   `json:"pickupDateFrom,omitempty"`
	PickupDateTo    string   `json:"pickupDateTo,omitempty"`
	EquipmentTypes  []string `json:"equipmentTypes,omitempty"`
	LoadType        string   `json:"loadType,omitempty"` // Full, Partial, Both
	MaxAgeMinutes   int      `json:"maxAgeMinutes,omitempty"`
	MaxOriginDH     int      `json:"maxOriginDeadheadMiles,omitempty"`
	MaxDestDH       int      `json:"maxDestinationDeadheadMiles,omitempty"`
	MaxLengthFeet   int      `json:"maxLengthFeet,omitempty"`
	MaxWeightPounds int      `json:"maxWeightPounds,omitempty"`
}

// PosterContact carries the posting broker/shipper's contact fields.
type PosterContact struct {
	Name        string `json:"name,omitempty"`
	MCNumber    string `json:"mcNumber,omitempty"`
	Location    string `json:"location,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	CreditScore *int   `json:"creditScore,omitempty"`
	DaysToPay   *int   `json:"daysToPay,omitempty"`
}

// NormalizedLoad is the provider-agnostic representation of a freight
// listing. Numeric fields stay nil when the source omits them; Source is the
// only provenance field a caller may rely on.
type NormalizedLoad struct {
	ID            string        `json:"id"`
	Source        Provider      `json:"source"`
	Origin        *string       `json:"origin"`      // "City, ST" when both known
	Destination   *string       `json:"destination"` // "City, ST" when both known
	OriginDH      *int          `json:"originDeadheadMiles,omitempty"`
	DestinationDH *int          `json:"destinationDeadheadMiles,omitempty"`
	PickupDate    string        `json:"pickupDate,omitempty"`
	DeliveryDate  string        `json:"deliveryDate,omitempty"`
	Age           string        `json:"age,omitempty"`
	RatePerMile   *float64      `json:"ratePerMile,omitempty"`
	Equipment     string        `json:"equipment,omitempty"`
	LengthFeet    *int          `json:"lengthFeet,omitempty"`
	WeightPounds  *int          `json:"weightPounds,omitempty"`
	LoadType      string        `json:"loadType,omitempty"`
	Poster        PosterContact `json:"poster"`
}

// ProviderStatus reports the per-provider outcome of one aggregated search.
// A failed provider contributes zero loads and a non-empty Error; an empty
// Error with Count zero means the provider genuinely had nothing.
type ProviderStatus struct {
	Provider Provider `json:"provider"`
	Count    int      `json:"count"`
	Error    string   `json:"error,omitempty"`
	Millis   int64    `json:"millis"`
}

// SearchResult is the aggregate return of a load search.
type SearchResult struct {
	Loads     []NormalizedLoad `json:"loads"`
	Providers []ProviderStatus `json:"providers"`
}

// FetchAudit is one recorded provider fetch, kept for admin metrics.
type FetchAudit struct {
	CompanyID string   `json:"companyId"`
	Provider  Provider `json:"provider"`
	Count     int      `json:"count"`
	Error     string   `json:"error,omitempty"`
	Millis    int64    `json:"millis"`
	TS        string   `json:"ts"`
}

// SubscriptionRequest registers a tenant webhook endpoint for alert events.
type SubscriptionRequest struct {
	CompanyID string   `json:"companyId"`
	URL       string   `json:"url"`
	Events    []string `json:"events"`
	Secret    string   `json:"secret"`
}

// Subscription is a stored alert webhook subscription.
type Subscription struct {
	ID        string   `json:"id"`
	CompanyID string   `json:"companyId"`
	URL       string   `json:"url"`
	Events    []string `json:"events"`
	Secret    string   `json:"secret,omitempty"`
}
