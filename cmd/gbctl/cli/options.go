package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alexbotov/gaming-billing/internal/config"
	"github.com/alexbotov/gaming-billing/pkg/billing"
	"github.com/spf13/cobra"
)

// DefaultSecretEnv is the variable the secret is read from unless --secret-env names another
const DefaultSecretEnv = "GAMING_BILLING_SECRET"

// ValidLogLevels lists the valid log level strings.
var ValidLogLevels = []string{"debug", "info", "warn", "error", "silent"}

// ValidLogFormats lists the valid log format strings.
var ValidLogFormats = []string{"text", "json"}

// RootOptions defines flags available across all subcommands.
// Unset flags fall back to the GAMING_BILLING_* environment.
type RootOptions struct {
	Endpoint   string
	Service    string
	SecretEnv  string
	LogLevel   string
	LogFormat  string
	Timeout    time.Duration
	JournalDSN string
}

// AddFlags adds root-level flags to the cobra command.
// The secret itself is never a flag; --secret-env names the variable holding it.
func (o *RootOptions) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&o.Endpoint, "endpoint", "",
		"billing service base URL (default $GAMING_BILLING_ENDPOINT)")

	cmd.PersistentFlags().StringVar(&o.Service, "service", "",
		"calling service name (default $GAMING_BILLING_SERVICE)")

	cmd.PersistentFlags().StringVar(&o.SecretEnv, "secret-env", DefaultSecretEnv,
		"environment variable holding the shared secret")

	cmd.PersistentFlags().StringVar(&o.LogLevel, "log-level", "info",
		"set the minimum log level (debug, info, warn, error, silent)")

	cmd.PersistentFlags().StringVar(&o.LogFormat, "log-format", "text",
		"set the log output format (text, json)")

	cmd.PersistentFlags().DurationVarP(&o.Timeout, "timeout", "t", 0,
		"request timeout (default $GAMING_BILLING_TIMEOUT or 30s)")

	cmd.PersistentFlags().StringVar(&o.JournalDSN, "journal-dsn", "",
		"record every operation in this database (default $GAMING_BILLING_JOURNAL_DSN)")
}

// Validate checks the enumerated flags
func (o *RootOptions) Validate() error {
	if !contains(ValidLogLevels, o.LogLevel) {
		return fmt.Errorf("invalid --log-level %q, expected one of %s", o.LogLevel, strings.Join(ValidLogLevels, ", "))
	}
	if !contains(ValidLogFormats, o.LogFormat) {
		return fmt.Errorf("invalid --log-format %q, expected one of %s", o.LogFormat, strings.Join(ValidLogFormats, ", "))
	}
	return nil
}

// Apply overlays the flags onto the environment configuration
func (o *RootOptions) Apply(cfg *config.Config) {
	if o.Endpoint != "" {
		cfg.Client.Endpoint = o.Endpoint
	}
	if o.Service != "" {
		cfg.Client.Service = o.Service
	}
	if o.SecretEnv != "" && o.SecretEnv != DefaultSecretEnv {
		cfg.Client.Secret = os.Getenv(o.SecretEnv)
	}
	if o.Timeout > 0 {
		cfg.Client.Timeout = o.Timeout
	}
	if o.JournalDSN != "" {
		cfg.Journal.DSN = o.JournalDSN
	}
}

// NewLogger creates a logger writing to w based on the options
func (o *RootOptions) NewLogger(w io.Writer) *slog.Logger {
	if o.LogLevel == "silent" {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(o.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if o.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// parseFilters reads repeated key=value flags. Comma-separated values become arrays.
func parseFilters(pairs []string) (billing.Filters, error) {
	filters := billing.Filters{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", pair)
		}
		if strings.Contains(value, ",") {
			filters[key] = strings.Split(value, ",")
		} else {
			filters[key] = value
		}
	}
	return filters, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
