package main

import (
	"bufio"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"haulboard/internal/api"
	"haulboard/internal/config"
	"haulboard/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	srvDeps, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	mux := http.NewServeMux()

	// Load search
	mux.HandleFunc("/v1/loads/search", srvDeps.LoadsSearchHandler)
	mux.HandleFunc("/v1/loads/providers", srvDeps.ProviderStatusHandler)
	mux.HandleFunc("/v1/loads/stream", srvDeps.LoadsStreamHandler)

	// Integrations
	mux.HandleFunc("/v1/integrations", srvDeps.IntegrationsHandler)
	mux.HandleFunc("/v1/integrations/", srvDeps.IntegrationByIDHandler) // includes /test

	// Alert subscriptions
	mux.HandleFunc("/v1/alerts/subscriptions", srvDeps.SubscriptionsHandler)
	mux.HandleFunc("/v1/alerts/subscriptions/", srvDeps.SubscriptionByIDHandler)

	// Admin
	mux.HandleFunc("/v1/admin/providers/", srvDeps.ProviderCredentialsHandler)
	mux.HandleFunc("/v1/admin/board-metrics", srvDeps.BoardMetricsHandler)
	mux.HandleFunc("/v1/admin/alerts/deliveries", srvDeps.AlertDeliveriesHandler)

	// Health and introspection
	mux.HandleFunc("/healthz", srvDeps.HealthHandler)
	mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
	mux.HandleFunc("/debug/info", srvDeps.DebugJSON)

	metrics.RegisterDefault()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	addr := ":" + cfg.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Background alert delivery worker
	worker := srvDeps.NewAlertWorker()
	worker.Start()

	// Scheduled credential sweep
	if cfg.HealthSweep.Schedule != "" {
		sweeper := srvDeps.NewHealthSweeper()
		if err := sweeper.Start(cfg.HealthSweep.Schedule); err != nil {
			log.Fatalf("failed to start health sweep: %v", err)
		}
	}

	log.Printf("API listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)
		status := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(dur.Seconds())
		log.Printf("%s %s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, status, dur)
	})
}
