package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alexbotov/gaming-billing/pkg/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newVerifier(options ...Option) *Verifier {
	options = append([]Option{WithClock(billing.FixedClock(now))}, options...)
	return New(StaticSecrets{"game": "s3cret"}, options...)
}

// signedRequest builds a request signed the way billing.Client does
func signedRequest(t *testing.T, method, target, body string, ts time.Time) *http.Request {
	t.Helper()

	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, target, rdr)

	sr, err := billing.Sign(billing.NewSigner([]byte("s3cret")), billing.FormatTimestamp(ts), r.URL.RequestURI(), []byte(body))
	require.NoError(t, err)
	r.Header = billing.DefaultHeaderNames().Header("game", sr)
	return r
}

func TestVerify_Accepts(t *testing.T) {
	v := newVerifier()

	r := signedRequest(t, http.MethodPost, "/api/currencies/holders/create/", `{"holder_id":"h1"}`, now)
	service, err := v.Verify(r)
	require.NoError(t, err)
	assert.Equal(t, "game", service)

	// body is restored
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"holder_id":"h1"}`, string(body))
}

func TestVerify_AcceptsEmptyQuery(t *testing.T) {
	v := newVerifier()

	r := signedRequest(t, http.MethodGet, "/api/currencies/units/?", "", now)
	_, err := v.Verify(r)
	assert.NoError(t, err)
}

func TestVerify_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *http.Request)
		want   error
	}{
		{"missing service", func(r *http.Request) { r.Header.Del("X-SERVICE") }, ErrMissingService},
		{"unknown service", func(r *http.Request) { r.Header.Set("X-SERVICE", "other") }, ErrUnknownService},
		{"missing signature", func(r *http.Request) { r.Header.Del("X-SIGNATURE") }, ErrMissingSignature},
		{"missing timestamp", func(r *http.Request) { r.Header.Del("X-SIGNATURE-TIMESTAMP") }, ErrMissingTimestamp},
		{"invalid timestamp", func(r *http.Request) { r.Header.Set("X-SIGNATURE-TIMESTAMP", "yesterday") }, ErrInvalidTimestamp},
		{"tampered signature", func(r *http.Request) { r.Header.Set("X-SIGNATURE", strings.Repeat("0", 64)) }, ErrSignatureMismatch},
		{"tampered body", func(r *http.Request) {
			r.Body = io.NopCloser(strings.NewReader(`{"holder_id":"h2"}`))
		}, ErrSignatureMismatch},
		{"tampered query", func(r *http.Request) { r.URL.RawQuery = "limit=2" }, ErrSignatureMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := signedRequest(t, http.MethodPost, "/api/currencies/holders/create/?limit=1", `{"holder_id":"h1"}`, now)
			tt.mutate(r)

			_, err := newVerifier().Verify(r)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerify_TimestampWindow(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
		ok     bool
	}{
		{"now", 0, true},
		{"slightly past", -29 * time.Second, true},
		{"slightly future", 29 * time.Second, true},
		{"at lower bound", -30 * time.Second, false},
		{"at upper bound", 30 * time.Second, false},
		{"long past", -time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := signedRequest(t, http.MethodGet, "/api/currencies/units/?", "", now.Add(tt.offset))
			_, err := newVerifier().Verify(r)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrStaleTimestamp)
			}
		})
	}
}

func TestVerify_CustomDeviation(t *testing.T) {
	r := signedRequest(t, http.MethodGet, "/api/currencies/units/?", "", now.Add(-2*time.Minute))
	_, err := newVerifier(WithDeviation(5 * time.Minute)).Verify(r)
	assert.NoError(t, err)
}

func TestVerify_CustomHeaderNames(t *testing.T) {
	names := billing.HeaderNames{Service: "X-CALLER"}
	v := newVerifier(WithHeaderNames(names))

	r := signedRequest(t, http.MethodGet, "/api/currencies/units/?", "", now)
	r.Header.Set("X-CALLER", r.Header.Get("X-SERVICE"))
	r.Header.Del("X-SERVICE")

	service, err := v.Verify(r)
	require.NoError(t, err)
	assert.Equal(t, "game", service)
}

func TestVerify_AgainstClient(t *testing.T) {
	v := newVerifier()

	var seen []string
	server := httptest.NewServer(v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		service, ok := ServiceFromContext(r.Context())
		require.True(t, ok)
		seen = append(seen, service)
		w.Write([]byte(`{"count":0,"next":null,"previous":null,"results":[]}`))
	})))
	defer server.Close()

	client := billing.NewClient(&billing.ClientConfig{
		Endpoint:    server.URL,
		ServiceName: "game",
		SecretKey:   "s3cret",
		Clock:       billing.FixedClock(now),
	})

	_, err := client.HoldersList(context.Background(), billing.HolderFilter{HolderType: "player"})
	require.NoError(t, err)
	_, err = client.Create(context.Background(), billing.Holders, map[string]any{"holder_id": "h1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"game", "game"}, seen)
}

func TestMiddleware_Rejects(t *testing.T) {
	called := false
	handler := newVerifier().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/currencies/units/?", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, ErrMissingService.Error(), body["detail"])
}

func TestMiddleware_CustomErrorHandler(t *testing.T) {
	var got error
	v := newVerifier(WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusForbidden)
	}))

	r := signedRequest(t, http.MethodGet, "/api/currencies/units/?", "", now)
	r.Header.Set("X-SERVICE", "other")
	w := httptest.NewRecorder()
	v.Middleware(http.NotFoundHandler()).ServeHTTP(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.ErrorIs(t, got, ErrUnknownService)
}

func TestSignerCachedPerService(t *testing.T) {
	lookups := 0
	store := secretFunc(func(ctx context.Context, service string) ([]byte, error) {
		lookups++
		return []byte("s3cret"), nil
	})
	v := New(store, WithClock(billing.FixedClock(now)))

	for i := 0; i < 3; i++ {
		r := signedRequest(t, http.MethodPost, "/api/currencies/holders/create/", `{}`, now)
		_, err := v.Verify(r)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, lookups)
}

type secretFunc func(ctx context.Context, service string) ([]byte, error)

func (f secretFunc) Secret(ctx context.Context, service string) ([]byte, error) {
	return f(ctx, service)
}

func TestVerify_NilBody(t *testing.T) {
	r := signedRequest(t, http.MethodGet, "/api/currencies/units/?", "", now)
	r.Body = nil
	_, err := newVerifier().Verify(r)
	assert.NoError(t, err)

	r = signedRequest(t, http.MethodGet, "/api/currencies/units/?", "", now)
	r.Body = io.NopCloser(bytes.NewReader(nil))
	_, err = newVerifier().Verify(r)
	assert.NoError(t, err)
}
