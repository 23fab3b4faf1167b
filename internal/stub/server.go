package stub

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alexbotov/gaming-billing/pkg/billing"
	"github.com/alexbotov/gaming-billing/pkg/billing/verify"
)

// Config holds the stub service configuration
type Config struct {
	// Services maps accepted service names to their secrets
	Services  map[string]string
	Headers   billing.HeaderNames
	Deviation time.Duration
	Clock     billing.Clock

	Units             []billing.Unit
	TransferRules     map[string]string
	ExchangeRules     map[string]ExchangeRule
	DefaultHolderType string
	AutoReject        time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns a configuration with two units and one rule of each kind
func DefaultConfig() *Config {
	return &Config{
		Services:  map[string]string{},
		Headers:   billing.DefaultHeaderNames(),
		Deviation: verify.DefaultDeviation,
		Units: []billing.Unit{
			{Symbol: "GOLD", Measurement: "coins"},
			{Symbol: "SILVER", Measurement: "coins"},
		},
		TransferRules: map[string]string{"p2p-gold": "GOLD"},
		ExchangeRules: map[string]ExchangeRule{
			"gold-silver": {FromUnit: "GOLD", ToUnit: "SILVER", Rate: "10"},
		},
		DefaultHolderType: "player",
		AutoReject:        time.Minute,
	}
}

// Server serves the currencies API from a Ledger
type Server struct {
	ledger   *Ledger
	verifier *verify.Verifier
	hub      *Hub
	logger   *slog.Logger
}

// New creates a stub server
func New(cfg *Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	options := []verify.Option{
		verify.WithHeaderNames(cfg.Headers),
		verify.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("rejected unsigned request", "path", r.URL.Path, "error", err)
			respondError(w, http.StatusUnauthorized, err.Error())
		}),
	}
	if cfg.Deviation > 0 {
		options = append(options, verify.WithDeviation(cfg.Deviation))
	}
	if cfg.Clock != nil {
		options = append(options, verify.WithClock(cfg.Clock))
	}

	ledger, err := NewLedger(cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		ledger:   ledger,
		verifier: verify.New(verify.StaticSecrets(cfg.Services), options...),
		hub:      NewHub(),
		logger:   logger,
	}
	s.ledger.OnEvent(s.hub.Publish)
	return s, nil
}

// Ledger returns the server's state
func (s *Server) Ledger() *Ledger {
	return s.ledger
}
