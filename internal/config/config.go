// Package config loads service configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"os"
	"strconv"

	yaml "gopkg.in/yaml.v3"
)

type Config struct {
	Port             string `yaml:"port"`
	DatabaseURL      string `yaml:"databaseUrl"`
	RedisURL         string `yaml:"redisUrl"`
	CredentialSecret string `yaml:"credentialSecret"`

	Auth struct {
		Mode       string `yaml:"mode"` // dev, hmac, jwks
		HMACSecret string `yaml:"hmacSecret"`
		JWKSURL    string `yaml:"jwksUrl"`
	} `yaml:"auth"`

	Providers struct {
		Truckstop struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"truckstop"`
		DAT struct {
			IdentityBase string `yaml:"identityBase"`
			FreightBase  string `yaml:"freightBase"`
		} `yaml:"dat"`
	} `yaml:"providers"`

	Search struct {
		TimeoutSeconds int     `yaml:"timeoutSeconds"`
		ProviderRPS    float64 `yaml:"providerRps"`
	} `yaml:"search"`

	HealthSweep struct {
		Schedule string `yaml:"schedule"` // cron expression; empty disables
	} `yaml:"healthSweep"`
}

// Load reads path (when it exists) and applies env overrides on top.
// A missing file is not an error; env alone is a valid configuration.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}

	overrideStr(&cfg.Port, "PORT")
	overrideStr(&cfg.DatabaseURL, "DATABASE_URL")
	overrideStr(&cfg.RedisURL, "REDIS_URL")
	overrideStr(&cfg.CredentialSecret, "CREDENTIAL_SECRET")
	overrideStr(&cfg.Auth.Mode, "AUTH_MODE")
	overrideStr(&cfg.Auth.HMACSecret, "AUTH_HMAC_SECRET")
	overrideStr(&cfg.Auth.JWKSURL, "AUTH_JWKS_URL")
	overrideStr(&cfg.Providers.Truckstop.Endpoint, "TRUCKSTOP_ENDPOINT")
	overrideStr(&cfg.Providers.DAT.IdentityBase, "DAT_IDENTITY_BASE")
	overrideStr(&cfg.Providers.DAT.FreightBase, "DAT_FREIGHT_BASE")
	overrideStr(&cfg.HealthSweep.Schedule, "HEALTH_SWEEP_SCHEDULE")
	if v := os.Getenv("SEARCH_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("PROVIDER_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.ProviderRPS = f
		}
	}

	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = "dev"
	}
	if cfg.CredentialSecret == "" {
		// dev fallback; set CREDENTIAL_SECRET in any real deployment
		cfg.CredentialSecret = "dev-insecure-credential-secret"
	}
	if cfg.Search.TimeoutSeconds <= 0 {
		cfg.Search.TimeoutSeconds = 20
	}
	return cfg, nil
}

func overrideStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
