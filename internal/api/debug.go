package api

import (
	"encoding/json"
	"net/http"
	"time"

	"haulboard/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                   s.Cfg.Port,
			"AUTH_MODE":              s.Cfg.Auth.Mode,
			"SEARCH_TIMEOUT_SECONDS": s.Cfg.Search.TimeoutSeconds,
			"PROVIDER_RPS":           s.Cfg.Search.ProviderRPS,
			"HEALTH_SWEEP_SCHEDULE":  s.Cfg.HealthSweep.Schedule,
			"HAS_DATABASE_URL":       s.Cfg.DatabaseURL != "",
			"HAS_REDIS_URL":          s.Cfg.RedisURL != "",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
