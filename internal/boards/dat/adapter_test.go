package dat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"haulboard/internal/boards"
	"haulboard/internal/model"
)

func testIntegration() model.Integration {
	return model.Integration{
		ID: "i1", CompanyID: "co_1", Provider: model.ProviderDAT, Status: "active",
		Credentials: map[string]string{
			"username": "org@example.com",
			"password": "hunter2",
			"email":    "dispatch@example.com",
		},
	}
}

// newTestServer wires both identity and freight endpoints onto one mux.
func newTestServer(t *testing.T, mux *http.ServeMux) *Adapter {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	a := New(srv.URL, srv.URL)
	a.Now = func() time.Time { return time.Date(2026, 9, 3, 12, 0, 0, 0, time.UTC) }
	return a
}

func authMux(t *testing.T, matches []map[string]any) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/access/v1/token/organization", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "org@example.com" || body["password"] != "hunter2" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": "org-token"})
	})
	mux.HandleFunc("/access/v1/token/user", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer org-token" {
			http.Error(w, "missing org bearer", http.StatusUnauthorized)
			return
		}
		// underscore spelling on purpose: both must be tolerated
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "user-token"})
	})
	mux.HandleFunc("/queries", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer user-token" {
			http.Error(w, "missing user bearer", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"queryId": "q-42"})
	})
	mux.HandleFunc("/queryMatches/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/q-42") {
			http.Error(w, "unknown query", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"matches": matches})
	})
	return mux
}

func sampleMatch() map[string]any {
	return map[string]any{
		"matchId":      "m-1",
		"servicedWhen": "2026-09-01T06:00:00Z",
		"matchingAssetInfo": map[string]any{
			"equipmentType": "VAN",
			"origin":        map[string]any{"city": "Portland", "stateProv": "OR"},
			"destination": map[string]any{
				"place": map[string]any{"city": "Boise", "stateProv": "ID"},
			},
		},
		"originDeadheadMiles":      map[string]any{"miles": float64(25)},
		"destinationDeadheadMiles": map[string]any{"miles": float64(40)},
		"tripLength":               map[string]any{"miles": float64(430)},
		"loadBoardRateInfo": map[string]any{
			"nonBookable": map[string]any{"rateUsd": float64(1290)},
		},
		"availability": map[string]any{
			"earliestWhen": "2026-09-04T08:00:00Z",
			"latestWhen":   "2026-09-05T17:00:00Z",
		},
		"shipmentDetails": map[string]any{
			"lengthFeet":   float64(53),
			"weightPounds": float64(42000),
			"fullPartial":  "FULL",
		},
		"posterInfo": map[string]any{
			"companyName": "Acme Brokerage",
			"mcNumber":    "MC99887",
			"city":        "Denver",
			"state":       "CO",
			"contact":     map[string]any{"phone": "555-0100", "email": "ops@acme.example"},
			"credit":      map[string]any{"creditScore": float64(97), "daysToPay": float64(23)},
		},
	}
}

func TestFetchLoadsFullChain(t *testing.T) {
	a := newTestServer(t, authMux(t, []map[string]any{sampleMatch()}))
	loads, err := a.FetchLoads(context.Background(), testIntegration(), model.LoadFilter{Origin: "Portland, OR"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(loads) != 1 {
		t.Fatalf("want 1 load, got %d", len(loads))
	}
	l := loads[0]
	if l.ID != "m-1" || l.Source != model.ProviderDAT {
		t.Errorf("id/source: %+v", l)
	}
	if l.Origin == nil || *l.Origin != "Portland, OR" {
		t.Errorf("origin: %v", l.Origin)
	}
	if l.Destination == nil || *l.Destination != "Boise, ID" {
		t.Errorf("destination: %v", l.Destination)
	}
	if l.RatePerMile == nil || *l.RatePerMile != 3.0 {
		t.Errorf("ratePerMile: %v", l.RatePerMile)
	}
	if l.Age != "2d" {
		t.Errorf("age: %q, want 2d", l.Age)
	}
	if l.Poster.Name != "Acme Brokerage" || l.Poster.Location != "Denver, CO" {
		t.Errorf("poster: %+v", l.Poster)
	}
	if l.Poster.CreditScore == nil || *l.Poster.CreditScore != 97 {
		t.Errorf("creditScore: %v", l.Poster.CreditScore)
	}
	if l.LengthFeet == nil || *l.LengthFeet != 53 {
		t.Errorf("lengthFeet: %v", l.LengthFeet)
	}
}

func TestFetchLoadsOrgAuthFailureNamesStep(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/access/v1/token/organization", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	})
	a := newTestServer(t, mux)
	_, err := a.FetchLoads(context.Background(), testIntegration(), model.LoadFilter{})
	var se *boards.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("want StatusError, got %v", err)
	}
	if se.Step != "org auth" || se.Status != http.StatusUnauthorized {
		t.Errorf("status error: %+v", se)
	}
}

func TestFetchLoadsSkipsMalformedMatch(t *testing.T) {
	mux := authMux(t, nil)
	// Override matches to mix a junk entry with a valid one.
	matches := []any{"not-an-object", sampleMatch()}
	mux.HandleFunc("/queryMatches/q-42", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"matches": matches})
	})
	a := newTestServer(t, mux)
	loads, err := a.FetchLoads(context.Background(), testIntegration(), model.LoadFilter{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(loads) != 1 || loads[0].ID != "m-1" {
		t.Fatalf("junk match should be skipped, got %+v", loads)
	}
}

func TestFetchLoadsMissingCredentials(t *testing.T) {
	a := New("http://unused.invalid", "http://unused.invalid")
	integ := testIntegration()
	delete(integ.Credentials, "email")
	_, err := a.FetchLoads(context.Background(), integ, model.LoadFilter{})
	var ce *boards.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConfigError, got %v", err)
	}
}

func TestBuildQueryDefaults(t *testing.T) {
	q := buildQuery(model.LoadFilter{})
	criteria, _ := q["criteria"].(map[string]any)
	if criteria == nil {
		t.Fatal("criteria missing")
	}
	origin, _ := criteria["origin"].(map[string]any)
	if states, _ := origin["states"].([]string); len(states) != len(boards.DATDefaultOriginStates) {
		t.Errorf("origin default states: %v", origin)
	}
	dest, _ := criteria["destination"].(map[string]any)
	if states, _ := dest["states"].([]string); len(states) != len(boards.DATDefaultDestinationStates) {
		t.Errorf("destination default states: %v", dest)
	}
	if criteria["loadType"] != "BOTH" {
		t.Errorf("loadType default: %v", criteria["loadType"])
	}
	if criteria["maxAgeMinutes"] != boards.DefaultMaxAgeMinutes {
		t.Errorf("maxAgeMinutes default: %v", criteria["maxAgeMinutes"])
	}
	for _, flag := range []string{"includeOnlyHasLength", "includeOnlyBookable", "includeOnlyNegotiable"} {
		v, ok := criteria[flag]
		if !ok || v != false {
			t.Errorf("flag %s: present=%v value=%v", flag, ok, v)
		}
	}
}

func TestBuildQueryPlaceOverridesStates(t *testing.T) {
	q := buildQuery(model.LoadFilter{Origin: "Portland, OR", Destination: "ID"})
	criteria, _ := q["criteria"].(map[string]any)
	origin, _ := criteria["origin"].(map[string]any)
	if _, hasStates := origin["states"]; hasStates {
		t.Error("origin with a place must not carry default states")
	}
	place, _ := origin["place"].(map[string]any)
	if place["city"] != "Portland" || place["stateProv"] != "OR" {
		t.Errorf("origin place: %v", place)
	}
	dest, _ := criteria["destination"].(map[string]any)
	destPlace, _ := dest["place"].(map[string]any)
	if destPlace["stateProv"] != "ID" {
		t.Errorf("destination place: %v", destPlace)
	}
}
