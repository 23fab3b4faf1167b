// Package verify checks signed requests on the receiving side of the billing
// protocol. It recomputes the HMAC over the canonical message with the
// caller's secret and enforces a timestamp window around the local clock.
package verify

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/alexbotov/gaming-billing/pkg/billing"
)

// DefaultDeviation is the accepted clock drift when none is configured
const DefaultDeviation = 30 * time.Second

var (
	ErrMissingService    = errors.New("service header is missing")
	ErrUnknownService    = errors.New("unknown service")
	ErrMissingSignature  = errors.New("signature header is missing")
	ErrMissingTimestamp  = errors.New("timestamp header is missing")
	ErrInvalidTimestamp  = errors.New("timestamp is not RFC 3339")
	ErrStaleTimestamp    = errors.New("timestamp is outside the accepted window")
	ErrSignatureMismatch = errors.New("signature does not match")
)

// SecretStore resolves the shared secret of a calling service
type SecretStore interface {
	Secret(ctx context.Context, service string) ([]byte, error)
}

// StaticSecrets is a fixed service name to secret map
type StaticSecrets map[string]string

func (s StaticSecrets) Secret(_ context.Context, service string) ([]byte, error) {
	secret, ok := s[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	return []byte(secret), nil
}

// Verifier authenticates signed requests. It is safe for concurrent use.
type Verifier struct {
	secrets   SecretStore
	headers   billing.HeaderNames
	deviation time.Duration
	clock     billing.Clock
	onError   ErrorHandler

	mu      sync.Mutex
	signers map[string]*billing.Signer
}

// New creates a Verifier
func New(secrets SecretStore, options ...Option) *Verifier {
	v := &Verifier{
		secrets:   secrets,
		headers:   billing.DefaultHeaderNames(),
		deviation: DefaultDeviation,
		clock:     billing.SystemClock{},
		onError:   writeError,
		signers:   make(map[string]*billing.Signer),
	}

	for _, option := range options {
		switch option.Ident() {
		case identHeaderNames{}:
			v.headers = option.Value().(billing.HeaderNames).WithDefaults()
		case identDeviation{}:
			v.deviation = option.Value().(time.Duration)
		case identClock{}:
			v.clock = option.Value().(billing.Clock)
		case identErrorHandler{}:
			v.onError = option.Value().(ErrorHandler)
		}
	}

	return v
}

// Verify authenticates r and returns the calling service's name.
// The request body is read and put back for downstream handlers.
func (v *Verifier) Verify(r *http.Request) (string, error) {
	service := r.Header.Get(v.headers.Service)
	if service == "" {
		return "", ErrMissingService
	}

	signer, err := v.signer(r.Context(), service)
	if err != nil {
		return "", err
	}

	signature := r.Header.Get(v.headers.Signature)
	if signature == "" {
		return "", ErrMissingSignature
	}

	rawTS := r.Header.Get(v.headers.Timestamp)
	if rawTS == "" {
		return "", ErrMissingTimestamp
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTS)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimestamp, rawTS)
	}

	now := v.clock.Now()
	if !ts.After(now.Add(-v.deviation)) || !ts.Before(now.Add(v.deviation)) {
		return "", ErrStaleTimestamp
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read body: %w", err)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	expected, err := signer.Sign(billing.CanonicalMessage(rawTS, r.URL.RequestURI(), body))
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return "", ErrSignatureMismatch
	}

	return service, nil
}

// signer returns the cached signer of service, resolving its secret on first use
func (v *Verifier) signer(ctx context.Context, service string) (*billing.Signer, error) {
	v.mu.Lock()
	s, ok := v.signers[service]
	v.mu.Unlock()
	if ok {
		return s, nil
	}

	secret, err := v.secrets.Secret(ctx, service)
	if err != nil {
		if errors.Is(err, ErrUnknownService) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnknownService, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.signers[service]; ok {
		return s, nil
	}
	s = billing.NewSigner(secret)
	v.signers[service] = s
	return s, nil
}

type contextKey struct{}

// ServiceFromContext returns the service name stored by Middleware
func ServiceFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(contextKey{}).(string)
	return s, ok
}

// Middleware rejects requests that fail verification
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		service, err := v.Verify(r)
		if err != nil {
			v.onError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, service)))
	})
}

func writeError(w http.ResponseWriter, _ *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"detail": err.Error()})
}
