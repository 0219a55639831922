// Package truckstop implements the Truckstop SOAP load-search adapter.
package truckstop

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"haulboard/internal/boards"
	"haulboard/internal/model"
	"haulboard/internal/secrets"
)

const (
	// DefaultEndpoint is the production load-search SOAP endpoint.
	DefaultEndpoint = "https://webservices.truckstop.com/v13/Searching/LoadSearch.svc"
	soapAction      = "http://webservices.truckstop.com/v13/ILoadSearch/GetMultipleLoadDetailResults"
	// maxResults caps how many load nodes are read from one response.
	maxResults = 50
)

// GlobalIntegrationIDKey names the shared account identifier stored at the
// provider level. Truckstop issues one IntegrationID per API account, not
// per tenant.
const GlobalIntegrationIDKey = "integration_id"

// Adapter speaks Truckstop's SOAP 1.1 load-search API.
type Adapter struct {
	Endpoint string
	Globals  boards.GlobalCredentialSource
	HTTP     *http.Client
}

// New builds an adapter. endpoint "" selects the production endpoint.
func New(endpoint string, globals boards.GlobalCredentialSource) *Adapter {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Adapter{
		Endpoint: endpoint,
		Globals:  globals,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Provider reports which load board this adapter serves.
func (a *Adapter) Provider() model.Provider { return model.ProviderTruckstop }

// credentials is the typed view of the integration credential blob plus the
// provider-level IntegrationID.
type credentials struct {
	Username      string
	Password      string
	IntegrationID string
}

func (a *Adapter) resolveCredentials(ctx context.Context, integ model.Integration) (credentials, error) {
	c := credentials{
		Username: secrets.First(integ.Credentials, "username", "user_name", "user"),
		Password: secrets.First(integ.Credentials, "password", "pass"),
	}
	if c.Username == "" || c.Password == "" {
		return c, &boards.ConfigError{Reason: "Truckstop integration is missing username or password"}
	}
	id, err := a.Globals.GetGlobalCredential(ctx, model.ProviderTruckstop, GlobalIntegrationIDKey)
	if err != nil || id == "" {
		return c, &boards.ConfigError{Reason: "Truckstop IntegrationID is not configured"}
	}
	c.IntegrationID = id
	return c, nil
}

// CheckCredentials reports whether the integration has a usable credential
// set, including the provider-level IntegrationID.
func (a *Adapter) CheckCredentials(ctx context.Context, integ model.Integration) error {
	_, err := a.resolveCredentials(ctx, integ)
	return err
}

// FetchLoads runs one load search and normalizes the response. A response
// that cannot be parsed yields zero loads, not an error; only transport and
// HTTP status failures surface.
func (a *Adapter) FetchLoads(ctx context.Context, integ model.Integration, filter model.LoadFilter) ([]model.NormalizedLoad, error) {
	creds, err := a.resolveCredentials(ctx, integ)
	if err != nil {
		return nil, err
	}

	body, err := xml.Marshal(buildEnvelope(creds, filter, time.Now()))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, bytes.NewReader(append([]byte(xml.Header), body...)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapAction)

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &boards.StatusError{Provider: model.ProviderTruckstop, Step: "load search", Status: resp.StatusCode, Body: string(raw)}
	}

	rows := parseLoadRows(resp.Body, maxResults)
	loads := make([]model.NormalizedLoad, 0, len(rows))
	for _, row := range rows {
		loads = append(loads, normalizeRow(row))
	}
	return loads, nil
}

// SOAP request shape. Element names follow the v13 LoadSearch contract;
// encoding/xml guarantees escaping and well-formedness.
type envelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    envBody
}

type envBody struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
	Op      operation
}

type operation struct {
	XMLName xml.Name      `xml:"http://webservices.truckstop.com/v13 GetMultipleLoadDetailResults"`
	Request searchRequest `xml:"searchRequest"`
}

type searchRequest struct {
	IntegrationID      string   `xml:"IntegrationId"`
	UserName           string   `xml:"UserName"`
	Password           string   `xml:"Password"`
	OriginCity         string   `xml:"Criteria>OriginCity,omitempty"`
	OriginState        string   `xml:"Criteria>OriginState,omitempty"`
	OriginCountry      string   `xml:"Criteria>OriginCountry"`
	DestinationCity    string   `xml:"Criteria>DestinationCity,omitempty"`
	DestinationStates  []string `xml:"Criteria>DestinationStates>State"`
	DestinationCountry string   `xml:"Criteria>DestinationCountry"`
	EquipmentTypes     string   `xml:"Criteria>EquipmentType"`
	LoadType           string   `xml:"Criteria>LoadType"`
	HoursOld           int      `xml:"Criteria>HoursOld"`
	PickupDateFrom     string   `xml:"Criteria>PickupDates>From"`
	PickupDateTo       string   `xml:"Criteria>PickupDates>To"`
	MaxOriginDistance  int      `xml:"Criteria>OriginRange,omitempty"`
	MaxDestDistance    int      `xml:"Criteria>DestinationRange,omitempty"`
	MaxLength          int      `xml:"Criteria>MaxLength,omitempty"`
	MaxWeight          int      `xml:"Criteria>MaxWeight,omitempty"`
}

func buildEnvelope(creds credentials, filter model.LoadFilter, now time.Time) envelope {
	origin := boards.ParseLocation(filter.Origin)
	dest := boards.ParseLocation(filter.Destination)

	req := searchRequest{
		IntegrationID:      creds.IntegrationID,
		UserName:           creds.Username,
		Password:           creds.Password,
		OriginCity:         origin.City,
		OriginState:        origin.State,
		OriginCountry:      origin.Country,
		DestinationCity:    dest.City,
		DestinationCountry: dest.Country,
		MaxOriginDistance:  filter.MaxOriginDH,
		MaxDestDistance:    filter.MaxDestDH,
		MaxLength:          filter.MaxLengthFeet,
		MaxWeight:          filter.MaxWeightPounds,
	}

	if dest.State != "" {
		req.DestinationStates = []string{dest.State}
	} else if strings.TrimSpace(filter.Destination) == "" {
		// No destination filter at all: query every state.
		req.DestinationStates = boards.AllStates
	}

	if len(filter.EquipmentTypes) > 0 {
		req.EquipmentTypes = strings.Join(filter.EquipmentTypes, ",")
	} else {
		req.EquipmentTypes = strings.Join(boards.TruckstopDefaultEquipment, ",")
	}

	req.LoadType = loadTypeOrAll(filter.LoadType)

	ageMin := filter.MaxAgeMinutes
	if ageMin <= 0 {
		ageMin = boards.DefaultMaxAgeMinutes
	}
	req.HoursOld = ageMin / 60
	if req.HoursOld < 1 {
		req.HoursOld = 1
	}

	req.PickupDateFrom = filter.PickupDateFrom
	if req.PickupDateFrom == "" {
		req.PickupDateFrom = now.Format("2006-01-02")
	}
	req.PickupDateTo = filter.PickupDateTo
	if req.PickupDateTo == "" {
		req.PickupDateTo = now.AddDate(0, 0, boards.DefaultPickupLeadDays).Format("2006-01-02")
	}

	return envelope{Body: envBody{Op: operation{Request: req}}}
}

func loadTypeOrAll(t string) string {
	switch strings.ToUpper(strings.TrimSpace(t)) {
	case "", "ALL", "BOTH":
		return "All"
	case "FULL":
		return "Full"
	case "PARTIAL":
		return "Partial"
	default:
		return "All"
	}
}

// parseLoadRows walks the response XML and collects load rows by structural
// element-name matching, case-insensitively. The parse is deliberately not
// schema-bound; anything malformed is logged and yields the rows gathered so
// far (possibly none).
func parseLoadRows(r io.Reader, limit int) []map[string]string {
	dec := xml.NewDecoder(r)
	var rows []map[string]string
	for len(rows) < limit {
		tok, err := dec.Token()
		if err != nil {
			if err != io.EOF {
				log.Printf("truckstop: response parse stopped: %v", err)
			}
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok || !strings.EqualFold(start.Name.Local, "MultipleLoadDetailResult") {
			continue
		}
		row, err := readRow(dec, start.Name.Local)
		if err != nil {
			log.Printf("truckstop: load row parse stopped: %v", err)
			break
		}
		rows = append(rows, row)
	}
	return rows
}

// readRow reads the children of one load element into a lowercased-name map.
func readRow(dec *xml.Decoder, rowName string) (map[string]string, error) {
	row := map[string]string{}
	field := ""
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return row, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			field = strings.ToLower(t.Name.Local)
			text.Reset()
		case xml.CharData:
			if field != "" {
				text.Write(t)
			}
		case xml.EndElement:
			if strings.EqualFold(t.Name.Local, rowName) {
				return row, nil
			}
			if field != "" {
				row[field] = strings.TrimSpace(text.String())
				field = ""
			}
		}
	}
}

func normalizeRow(row map[string]string) model.NormalizedLoad {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := row[k]; v != "" {
				return v
			}
		}
		return ""
	}
	atoi := func(s string) int {
		n, _ := strconv.Atoi(strings.TrimSpace(s))
		return n
	}

	payment := boards.ParseMoney(get("paymentamount"))
	if payment <= 0 {
		payment = boards.ParseMoney(get("fuelcost"))
	}
	mileage := boards.ParseMoney(get("mileage"))

	load := model.NormalizedLoad{
		ID:            get("id", "loadid"),
		Source:        model.ProviderTruckstop,
		Origin:        boards.CombineCityState(get("origincity"), get("originstate")),
		Destination:   boards.CombineCityState(get("destinationcity"), get("destinationstate")),
		OriginDH:      boards.IntPtr(atoi(get("origindistance"))),
		DestinationDH: boards.IntPtr(atoi(get("destinationdistance"))),
		PickupDate:    get("pickupdate"),
		DeliveryDate:  get("deliverydate"),
		Age:           get("age"),
		RatePerMile:   boards.RatePerMile(payment, mileage),
		Equipment:     get("equipment", "equipmenttype"),
		LengthFeet:    boards.IntPtr(atoi(get("length"))),
		WeightPounds:  boards.IntPtr(atoi(get("weight"))),
		LoadType:      get("loadtype"),
		Poster: model.PosterContact{
			Name:     get("truckcompanyname", "companyname"),
			MCNumber: get("mcnumber"),
			Location: deref(boards.CombineCityState(get("truckcompanycity"), get("truckcompanystate"))),
			Phone:    get("truckcompanyphone", "pointofcontactphone"),
			Email:    get("truckcompanyemail"),
		},
	}
	if v := atoi(get("creditscore")); v > 0 {
		load.Poster.CreditScore = &v
	}
	if v := atoi(get("daystopay")); v > 0 {
		load.Poster.DaysToPay = &v
	}
	return load
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
