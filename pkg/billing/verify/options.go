package verify

import (
	"net/http"
	"time"

	"github.com/alexbotov/gaming-billing/pkg/billing"
	"github.com/lestrrat-go/option"
)

// Option configures a Verifier
type Option = option.Interface

type identHeaderNames struct{}

func (identHeaderNames) String() string { return "WithHeaderNames" }

type identDeviation struct{}

func (identDeviation) String() string { return "WithDeviation" }

type identClock struct{}

func (identClock) String() string { return "WithClock" }

type identErrorHandler struct{}

func (identErrorHandler) String() string { return "WithErrorHandler" }

// ErrorHandler writes the response for a request that failed verification
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// WithHeaderNames overrides the names of the authentication headers.
// Empty names keep their defaults.
func WithHeaderNames(h billing.HeaderNames) Option {
	return option.New(identHeaderNames{}, h)
}

// WithDeviation sets how far a request timestamp may drift from the local clock
func WithDeviation(d time.Duration) Option {
	return option.New(identDeviation{}, d)
}

// WithClock sets the clock timestamps are checked against
func WithClock(c billing.Clock) Option {
	return option.New(identClock{}, c)
}

// WithErrorHandler replaces the 401 JSON response written by Middleware
func WithErrorHandler(h ErrorHandler) Option {
	return option.New(identErrorHandler{}, h)
}
