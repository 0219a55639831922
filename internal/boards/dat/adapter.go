// Package dat implements the DAT REST load-search adapter.
//
// One search is four sequential round-trips, each feeding the next:
// organization auth -> user auth -> create search query -> fetch matches.
package dat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"haulboard/internal/boards"
	"haulboard/internal/model"
	"haulboard/internal/secrets"
)

const (
	// DefaultIdentityBase hosts the token endpoints.
	DefaultIdentityBase = "https://identity.api.staging.dat.com"
	// DefaultFreightBase hosts search queries and matches.
	DefaultFreightBase = "https://freight.api.staging.dat.com"
)

// Adapter speaks DAT's bearer-token freight search API.
type Adapter struct {
	IdentityBase string
	FreightBase  string
	HTTP         *http.Client
	// Now is swappable for age derivation in tests.
	Now func() time.Time
}

// New builds an adapter. Empty base URLs select the staging endpoints.
func New(identityBase, freightBase string) *Adapter {
	if identityBase == "" {
		identityBase = DefaultIdentityBase
	}
	if freightBase == "" {
		freightBase = DefaultFreightBase
	}
	return &Adapter{
		IdentityBase: strings.TrimRight(identityBase, "/"),
		FreightBase:  strings.TrimRight(freightBase, "/"),
		HTTP:         &http.Client{Timeout: 30 * time.Second},
		Now:          time.Now,
	}
}

// Provider reports which load board this adapter serves.
func (a *Adapter) Provider() model.Provider { return model.ProviderDAT }

// credentials is the typed view of the integration credential blob.
type credentials struct {
	OrgUsername string
	OrgPassword string
	UserEmail   string
}

func resolveCredentials(integ model.Integration) (credentials, error) {
	c := credentials{
		OrgUsername: secrets.First(integ.Credentials, "org_username", "username"),
		OrgPassword: secrets.First(integ.Credentials, "org_password", "password"),
		UserEmail:   secrets.First(integ.Credentials, "user_email", "email"),
	}
	if c.OrgUsername == "" || c.OrgPassword == "" || c.UserEmail == "" {
		return c, &boards.ConfigError{Reason: "DAT integration is missing org credentials or user email"}
	}
	return c, nil
}

// CheckCredentials reports whether the integration has a usable credential set.
func (a *Adapter) CheckCredentials(ctx context.Context, integ model.Integration) error {
	_, err := resolveCredentials(integ)
	return err
}

// FetchLoads runs the four-step search. Any step failing aborts the chain
// with an error naming the step; a malformed individual match is skipped
// without sinking the batch.
func (a *Adapter) FetchLoads(ctx context.Context, integ model.Integration, filter model.LoadFilter) ([]model.NormalizedLoad, error) {
	creds, err := resolveCredentials(integ)
	if err != nil {
		return nil, err
	}

	orgToken, err := a.token(ctx, "org auth", a.IdentityBase+"/access/v1/token/organization",
		"", map[string]any{"username": creds.OrgUsername, "password": creds.OrgPassword})
	if err != nil {
		return nil, err
	}
	userToken, err := a.token(ctx, "user auth", a.IdentityBase+"/access/v1/token/user",
		orgToken, map[string]any{"username": creds.UserEmail})
	if err != nil {
		return nil, err
	}

	queryID, err := a.createQuery(ctx, userToken, filter)
	if err != nil {
		return nil, err
	}
	return a.fetchMatches(ctx, userToken, queryID)
}

// token performs one auth POST and extracts the access token, tolerating
// both accessToken and access_token field spellings.
func (a *Adapter) token(ctx context.Context, step, url, bearer string, payload map[string]any) (string, error) {
	status, body, err := a.doJSON(ctx, http.MethodPost, url, bearer, payload)
	if err != nil {
		return "", fmt.Errorf("DAT %s: %w", step, err)
	}
	if status < 200 || status >= 300 {
		return "", &boards.StatusError{Provider: model.ProviderDAT, Step: step, Status: status, Body: string(body)}
	}
	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("DAT %s: decode response: %w", step, err)
	}
	tok := str(resp, "accessToken")
	if tok == "" {
		tok = str(resp, "access_token")
	}
	if tok == "" {
		return "", fmt.Errorf("DAT %s: access token missing in response (status %d): %s", step, status, string(body))
	}
	return tok, nil
}

func (a *Adapter) createQuery(ctx context.Context, userToken string, filter model.LoadFilter) (string, error) {
	status, body, err := a.doJSON(ctx, http.MethodPost, a.FreightBase+"/queries", userToken, buildQuery(filter))
	if err != nil {
		return "", fmt.Errorf("DAT create query: %w", err)
	}
	if status < 200 || status >= 300 {
		return "", &boards.StatusError{Provider: model.ProviderDAT, Step: "create query", Status: status, Body: string(body)}
	}
	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("DAT create query: decode response: %w", err)
	}
	id := str(resp, "queryId")
	if id == "" {
		id = str(resp, "id")
	}
	if id == "" {
		return "", fmt.Errorf("DAT create query: queryId missing in response (status %d): %s", status, string(body))
	}
	return id, nil
}

func (a *Adapter) fetchMatches(ctx context.Context, userToken, queryID string) ([]model.NormalizedLoad, error) {
	status, body, err := a.doJSON(ctx, http.MethodGet, a.FreightBase+"/queryMatches/"+queryID, userToken, nil)
	if err != nil {
		return nil, fmt.Errorf("DAT fetch matches: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, &boards.StatusError{Provider: model.ProviderDAT, Step: "fetch matches", Status: status, Body: string(body)}
	}
	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("DAT fetch matches: decode response: %w", err)
	}
	raw, _ := resp["matches"].([]any)
	loads := make([]model.NormalizedLoad, 0, len(raw))
	for i, m := range raw {
		match, ok := m.(map[string]any)
		if !ok {
			log.Printf("dat: skipping malformed match %d in query %s", i, queryID)
			continue
		}
		loads = append(loads, a.normalizeMatch(match))
	}
	return loads, nil
}

func (a *Adapter) doJSON(ctx context.Context, method, url, bearer string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := a.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

// buildQuery maps the filter into DAT's search payload. Defaults here are
// DAT's own, independent of the Truckstop ones; the origin and destination
// state fallbacks are asymmetric on purpose.
func buildQuery(filter model.LoadFilter) map[string]any {
	origin := boards.ParseLocation(filter.Origin)
	dest := boards.ParseLocation(filter.Destination)

	originArea := map[string]any{}
	if origin.City != "" || origin.State != "" {
		originArea["place"] = map[string]any{"city": origin.City, "stateProv": origin.State}
	} else {
		originArea["states"] = boards.DATDefaultOriginStates
	}
	destArea := map[string]any{}
	if dest.City != "" || dest.State != "" {
		destArea["place"] = map[string]any{"city": dest.City, "stateProv": dest.State}
	} else {
		destArea["states"] = boards.DATDefaultDestinationStates
	}

	equipment := filter.EquipmentTypes
	if len(equipment) == 0 {
		equipment = boards.DATDefaultEquipment
	}

	ageMin := filter.MaxAgeMinutes
	if ageMin <= 0 {
		ageMin = boards.DefaultMaxAgeMinutes
	}

	criteria := map[string]any{
		"origin":                      originArea,
		"destination":                 destArea,
		"equipmentTypes":              equipment,
		"loadType":                    datLoadType(filter.LoadType),
		"maxAgeMinutes":               ageMin,
		"availability":                availability(filter),
		"maxOriginDeadheadMiles":      filter.MaxOriginDH,
		"maxDestinationDeadheadMiles": filter.MaxDestDH,
	}
	if filter.MaxLengthFeet > 0 {
		criteria["maxLengthFeet"] = filter.MaxLengthFeet
	}
	if filter.MaxWeightPounds > 0 {
		criteria["maxWeightPounds"] = filter.MaxWeightPounds
	}
	// DAT requires the includeOnly flags to be present; all opt-outs.
	for _, flag := range []string{
		"includeOnlyHasLength", "includeOnlyHasWeight", "includeOnlyTrackable",
		"includeOnlyLoadBoardAuthorized", "includeOnlyQuickPayable",
		"includeOnlyFactorable", "includeOnlyAssurable", "includeOnlyBookable",
		"includeOnlyNegotiable",
	} {
		criteria[flag] = false
	}
	return map[string]any{"criteria": criteria}
}

func availability(filter model.LoadFilter) map[string]any {
	av := map[string]any{}
	if filter.PickupDateFrom != "" {
		av["earliestWhen"] = filter.PickupDateFrom
	}
	if filter.PickupDateTo != "" {
		av["latestWhen"] = filter.PickupDateTo
	}
	return av
}

func datLoadType(t string) string {
	switch strings.ToUpper(strings.TrimSpace(t)) {
	case "FULL":
		return "FULL"
	case "PARTIAL":
		return "PARTIAL"
	default:
		return "BOTH"
	}
}

// normalizeMatch maps one match object defensively; every nested access is
// guarded so one odd match cannot abort the batch.
func (a *Adapter) normalizeMatch(m map[string]any) model.NormalizedLoad {
	asset := obj(m, "matchingAssetInfo")
	originPlace := obj(asset, "origin")
	destPlace := obj(obj(asset, "destination"), "place")
	poster := obj(m, "posterInfo")
	posterContact := obj(poster, "contact")
	credit := obj(poster, "credit")
	rateInfo := obj(obj(m, "loadBoardRateInfo"), "nonBookable")

	load := model.NormalizedLoad{
		ID:            str(m, "matchId"),
		Source:        model.ProviderDAT,
		Origin:        boards.CombineCityState(str(originPlace, "city"), str(originPlace, "stateProv")),
		Destination:   boards.CombineCityState(str(destPlace, "city"), str(destPlace, "stateProv")),
		OriginDH:      boards.IntPtr(int(num(obj(m, "originDeadheadMiles"), "miles"))),
		DestinationDH: boards.IntPtr(int(num(obj(m, "destinationDeadheadMiles"), "miles"))),
		PickupDate:    str(obj(m, "availability"), "earliestWhen"),
		DeliveryDate:  str(obj(m, "availability"), "latestWhen"),
		RatePerMile:   boards.RatePerMile(num(rateInfo, "rateUsd"), num(obj(m, "tripLength"), "miles")),
		Equipment:     str(asset, "equipmentType"),
		LengthFeet:    boards.IntPtr(int(num(obj(m, "shipmentDetails"), "lengthFeet"))),
		WeightPounds:  boards.IntPtr(int(num(obj(m, "shipmentDetails"), "weightPounds"))),
		LoadType:      str(obj(m, "shipmentDetails"), "fullPartial"),
		Poster: model.PosterContact{
			Name:     str(poster, "companyName"),
			MCNumber: str(poster, "mcNumber"),
			Location: derefOr(boards.CombineCityState(str(poster, "city"), str(poster, "state")), ""),
			Phone:    str(posterContact, "phone"),
			Email:    str(posterContact, "email"),
		},
	}
	if v := int(num(credit, "creditScore")); v > 0 {
		load.Poster.CreditScore = &v
	}
	if v := int(num(credit, "daysToPay")); v > 0 {
		load.Poster.DaysToPay = &v
	}
	if when := str(m, "servicedWhen"); when != "" {
		if ts, err := time.Parse(time.RFC3339, when); err == nil {
			days := int(math.Floor(a.Now().UTC().Sub(ts).Hours() / 24))
			if days < 0 {
				days = 0
			}
			load.Age = fmt.Sprintf("%dd", days)
		}
	}
	return load
}

func obj(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]any)
	return v
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

func num(m map[string]any, key string) float64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
