package api

import (
	"fmt"
	"time"

	"haulboard/internal/model"
)

func validateLoadFilter(f *model.LoadFilter) error {
	if f.MaxAgeMinutes < 0 {
		return fmt.Errorf("maxAgeMinutes must be >= 0")
	}
	if f.MaxOriginDH < 0 || f.MaxDestDH < 0 {
		return fmt.Errorf("deadhead limits must be >= 0")
	}
	if f.MaxLengthFeet < 0 || f.MaxWeightPounds < 0 {
		return fmt.Errorf("length and weight limits must be >= 0")
	}
	for _, d := range []string{f.PickupDateFrom, f.PickupDateTo} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("pickup dates must be YYYY-MM-DD, got %q", d)
		}
	}
	return nil
}

func validateIntegrationIn(in *model.IntegrationIn) error {
	if !model.KnownProvider(in.Provider) {
		return fmt.Errorf("unknown provider: %s", in.Provider)
	}
	if len(in.Credentials) == 0 {
		return fmt.Errorf("credentials are required")
	}
	return nil
}
