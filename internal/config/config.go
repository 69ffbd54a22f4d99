// Package config loads server and client settings from the environment.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sethvargo/go-envconfig"
)

// Server configures cmd/server.
type Server struct {
	Port         int    `env:"PORT,          default=8080"`
	DBPath       string `env:"DB_PATH,       default=./data/bills.db"`
	LogLevel     string `env:"LOG_LEVEL,     default=info"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`

	// BillReadyWebhookURL receives a POST for every imported bill that came
	// from a chat. Empty disables it.
	BillReadyWebhookURL string `env:"BILL_READY_WEBHOOK_URL"`

	Redis Redis
}

// Client configures cmd/splitclaim.
type Client struct {
	// APIURL is the claim endpoint's base URL. It is only required when
	// submitting a claim.
	APIURL string `env:"SPLITCLAIM_API_URL"`

	// StoreURL is the bill store API's base URL. Defaults to APIURL.
	StoreURL string `env:"SPLITCLAIM_STORE_URL"`

	IdentityPath string `env:"SPLITCLAIM_IDENTITY_PATH"`
	LogLevel     string `env:"LOG_LEVEL,     default=warn"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`

	// MetricsAddr serves /metrics while a command runs. Empty disables it.
	MetricsAddr string `env:"SPLITCLAIM_METRICS_ADDR"`

	Redis Redis
}

// Redis selects the change feed. An empty Addr means the in-process hub.
type Redis struct {
	Addr string `env:"REDIS_ADDR"`
	DB   int    `env:"REDIS_DB, default=0"`
}

// LoadServer reads the server configuration.
func LoadServer(ctx context.Context) (*Server, error) {
	return loadServer(ctx, envconfig.OsLookuper())
}

func loadServer(ctx context.Context, lookuper envconfig.Lookuper) (*Server, error) {
	var cfg Server
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}
	return &cfg, nil
}

// LoadClient reads the client configuration and fills in derived defaults.
func LoadClient(ctx context.Context) (*Client, error) {
	return loadClient(ctx, envconfig.OsLookuper())
}

func loadClient(ctx context.Context, lookuper envconfig.Lookuper) (*Client, error) {
	var cfg Client
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to load client config: %w", err)
	}

	if cfg.StoreURL == "" {
		cfg.StoreURL = cfg.APIURL
	}
	if cfg.IdentityPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate config directory: %w", err)
		}
		cfg.IdentityPath = filepath.Join(dir, "splitclaim", "identity.db")
	}
	return &cfg, nil
}
