// Package health runs the scheduled integration credential sweep.
package health

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"haulboard/internal/model"
	"haulboard/internal/store"
	"haulboard/internal/webhooks"
)

// CredentialChecker validates that an integration's credentials are complete
// enough to attempt a fetch. Both provider adapters implement it.
type CredentialChecker interface {
	CheckCredentials(ctx context.Context, integ model.Integration) error
}

// Sweeper periodically checks every active integration's credentials. A
// failing integration is flipped to errored and an integration.errored alert
// is emitted for its company.
type Sweeper struct {
	Store    store.Store
	Checkers map[model.Provider]CredentialChecker
	Alerts   *webhooks.Publisher

	cron *cron.Cron
}

func NewSweeper(s store.Store, checkers map[model.Provider]CredentialChecker, alerts *webhooks.Publisher) *Sweeper {
	return &Sweeper{Store: s, Checkers: checkers, Alerts: alerts}
}

// Start schedules the sweep with a cron expression, e.g. "0 * * * *".
func (s *Sweeper) Start(schedule string) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(schedule, s.SweepOnce); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// SweepOnce runs one pass over all active integrations.
func (s *Sweeper) SweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	integs, err := s.Store.ListAllActiveIntegrations(ctx)
	if err != nil {
		log.Printf("health: list integrations failed: %v", err)
		return
	}
	for _, integ := range integs {
		checker, ok := s.Checkers[integ.Provider]
		if !ok {
			continue
		}
		err := checker.CheckCredentials(ctx, integ)
		if err == nil {
			continue
		}
		log.Printf("health: integration %s (%s, company %s) failed credential check: %v", integ.ID, integ.Provider, integ.CompanyID, err)
		if _, serr := s.Store.SetIntegrationStatus(ctx, integ.CompanyID, integ.ID, "errored", err.Error()); serr != nil {
			log.Printf("health: mark integration %s errored: %v", integ.ID, serr)
			continue
		}
		if s.Alerts != nil {
			s.Alerts.Emit(ctx, integ.CompanyID, "integration.errored", map[string]any{
				"integrationId": integ.ID,
				"provider":      integ.Provider,
				"error":         err.Error(),
			})
		}
	}
}
