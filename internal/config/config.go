// Package config provides configuration management for the billing tools
package config

import (
	"os"
	"strings"
	"time"

	"github.com/alexbotov/gaming-billing/pkg/billing"
)

// Config holds all configuration for the billing tools
type Config struct {
	Client  ClientConfig
	Stub    StubConfig
	Journal JournalConfig
}

// ClientConfig holds the billing API client configuration
type ClientConfig struct {
	Endpoint        string
	Service         string
	Secret          string
	ServiceHeader   string
	SignatureHeader string
	TimestampHeader string
	Timeout         time.Duration
}

// StubConfig holds the stub server configuration
type StubConfig struct {
	Addr         string
	Deviation    time.Duration
	Services     map[string]string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// JournalConfig holds the operation journal database configuration
type JournalConfig struct {
	Driver string
	DSN    string
}

// Load loads configuration from environment with defaults
func Load() *Config {
	return &Config{
		Client: ClientConfig{
			Endpoint:        getEnv("GAMING_BILLING_ENDPOINT", "http://localhost:8000"),
			Service:         getEnv("GAMING_BILLING_SERVICE", ""),
			Secret:          getEnv("GAMING_BILLING_SECRET", ""),
			ServiceHeader:   getEnv("GAMING_BILLING_SERVICE_HEADER", ""),
			SignatureHeader: getEnv("GAMING_BILLING_SIGNATURE_HEADER", ""),
			TimestampHeader: getEnv("GAMING_BILLING_TIMESTAMP_HEADER", ""),
			Timeout:         getDuration("GAMING_BILLING_TIMEOUT", 30*time.Second),
		},
		Stub: StubConfig{
			Addr:         getEnv("GAMING_BILLING_STUB_ADDR", ":8000"),
			Deviation:    getDuration("GAMING_BILLING_STUB_DEVIATION", 30*time.Second),
			Services:     parseServices(getEnv("GAMING_BILLING_STUB_SERVICES", "")),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Journal: JournalConfig{
			Driver: getEnv("GAMING_BILLING_JOURNAL_DRIVER", "postgres"),
			DSN:    getEnv("GAMING_BILLING_JOURNAL_DSN", ""),
		},
	}
}

// ToClientConfig converts c to a billing client configuration.
// Empty header names keep the protocol defaults.
func (c *ClientConfig) ToClientConfig() *billing.ClientConfig {
	return &billing.ClientConfig{
		Endpoint:    c.Endpoint,
		ServiceName: c.Service,
		SecretKey:   c.Secret,
		Headers: billing.HeaderNames{
			Service:   c.ServiceHeader,
			Signature: c.SignatureHeader,
			Timestamp: c.TimestampHeader,
		}.WithDefaults(),
		Timeout: c.Timeout,
	}
}

// parseServices reads "name=secret,name2=secret2". Malformed pairs are skipped.
func parseServices(raw string) map[string]string {
	services := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		name, secret, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" || secret == "" {
			continue
		}
		services[name] = secret
	}
	return services
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
