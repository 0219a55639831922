// Package api implements HTTP handlers and helpers for the haulboard service.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"haulboard/internal/auth"
	"haulboard/internal/boards"
	"haulboard/internal/boards/dat"
	"haulboard/internal/boards/truckstop"
	"haulboard/internal/config"
	"haulboard/internal/health"
	"haulboard/internal/model"
	"haulboard/internal/secrets"
	"haulboard/internal/store"
	"haulboard/internal/webhooks"
)

type Server struct {
	Cfg    config.Config
	Store  store.Store
	Agg    *boards.Aggregator
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker
	Status *ProviderStatusCache
}

// NewServer wires the store, provider adapters, aggregator and broker from
// config. No DATABASE_URL means the in-memory store; no REDIS_URL means the
// in-process broker.
func NewServer(cfg config.Config) (*Server, error) {
	codec, err := secrets.NewCodec(cfg.CredentialSecret)
	if err != nil {
		return nil, err
	}
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory(codec)
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL, codec)
		if err != nil {
			return nil, err
		}
		if err := sp.MigrateDir("db/migrations"); err != nil {
			return nil, err
		}
		s = sp
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	ts := truckstop.New(cfg.Providers.Truckstop.Endpoint, s)
	dt := dat.New(cfg.Providers.DAT.IdentityBase, cfg.Providers.DAT.FreightBase)
	agg := boards.NewAggregator(s, []boards.Adapter{ts, dt}, cfg.Search.ProviderRPS, time.Duration(cfg.Search.TimeoutSeconds)*time.Second)
	agg.Events = broker

	return &Server{
		Cfg:    cfg,
		Store:  s,
		Agg:    agg,
		Pub:    webhooks.NewPublisher(s),
		Auth:   auth.NewVerifier(cfg),
		Broker: broker,
		Status: NewProviderStatusCache(),
	}, nil
}

// NewAlertWorker creates the background worker for alert deliveries.
func (s *Server) NewAlertWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, 0)
}

// NewHealthSweeper creates the scheduled integration credential sweep.
func (s *Server) NewHealthSweeper() *health.Sweeper {
	checkers := map[model.Provider]health.CredentialChecker{}
	for p, ad := range s.Agg.Adapters {
		if c, ok := ad.(health.CredentialChecker); ok {
			checkers[p] = c
		}
	}
	return health.NewSweeper(s.Store, checkers, s.Pub)
}

func (s *Server) withCompany(r *http.Request) (context.Context, string) {
	p := s.getPrincipal(r)
	ctx := context.WithValue(r.Context(), ctxKeyCompany{}, p.Company)
	return ctx, p.Company
}

type ctxKeyCompany struct{}
