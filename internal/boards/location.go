package boards

import "strings"

// Shared filter defaults. Both adapters default independently per their
// provider's conventions; the literals live here so tests can pin them.
var (
	// AllStates lists the 50 US state codes used when a caller supplies no
	// destination filter for Truckstop.
	AllStates = []string{
		"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA",
		"HI", "ID", "IL", "IN", "IA", "KS", "KY", "LA", "ME", "MD",
		"MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ",
		"NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC",
		"SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
	}

	// TruckstopDefaultEquipment is the equipment list sent when the filter
	// names none (van, flatbed, reefer).
	TruckstopDefaultEquipment = []string{"V", "F", "R"}

	// DATDefaultEquipment is DAT's own unset-equipment default.
	DATDefaultEquipment = []string{"VAN", "FLATBED", "REEFER"}

	// DAT applies asymmetric regional state defaults when origin or
	// destination is unset. Provider-specific and intentional.
	DATDefaultOriginStates      = []string{"OR", "WA", "CA", "ID", "NV", "UT", "AZ"}
	DATDefaultDestinationStates = []string{"CA", "WA", "UT", "AZ", "NV", "ID", "MT", "CO", "NM"}
)

const (
	// DefaultMaxAgeMinutes bounds result age when the filter leaves it unset.
	DefaultMaxAgeMinutes = 24 * 60
	// DefaultPickupLeadDays is how far out the pickup window extends when the
	// filter gives no dates.
	DefaultPickupLeadDays = 6
)

// Location is the parsed form of a free-text place filter.
type Location struct {
	City    string
	State   string
	Country string
}

// ParseLocation splits a free-text "City, ST" / "ST" / "USA" filter value.
// The single-token rules are best-effort: a bare two-letter token is assumed
// to be a state code and any other bare token a city name, which is
// ambiguous for abbreviation collisions. Callers get exactly what the
// heuristic decides; no geocoding is attempted.
func ParseLocation(s string) Location {
	loc := Location{Country: "usa"}
	s = strings.TrimSpace(s)
	if s == "" {
		return loc
	}
	if city, state, ok := strings.Cut(s, ","); ok {
		loc.City = strings.TrimSpace(city)
		loc.State = strings.ToUpper(strings.TrimSpace(state))
		return loc
	}
	switch {
	case len(s) == 2:
		loc.State = strings.ToUpper(s)
	case strings.EqualFold(s, "USA"):
		// whole-country search; neither city nor state
	default:
		loc.City = s
	}
	return loc
}

// CombineCityState joins city and state as "City, ST", returns the lone
// non-empty part when only one is known, and nil when neither is. Never an
// empty string.
func CombineCityState(city, state string) *string {
	city = strings.TrimSpace(city)
	state = strings.TrimSpace(state)
	switch {
	case city != "" && state != "":
		s := city + ", " + state
		return &s
	case city != "":
		return &city
	case state != "":
		return &state
	default:
		return nil
	}
}
