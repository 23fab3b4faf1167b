package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/alexbotov/gaming-billing/pkg/billing"

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds the configuration for the billing client
type ClientConfig struct {
	Endpoint    string
	ServiceName string
	SecretKey   string
	Headers     HeaderNames
	Timeout     time.Duration
	Clock       Clock
}

// DefaultConfig returns a default client configuration
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		Headers: DefaultHeaderNames(),
		Timeout: 30 * time.Second,
	}
}

// Client is a gaming billing currencies API client.
// It is safe for concurrent use.
type Client struct {
	endpoint    string
	serviceName string
	headers     HeaderNames
	clock       Clock
	signer      *Signer
	httpClient  Doer
	tracer      trace.Tracer
}

// NewClient creates a new billing API client
func NewClient(config *ClientConfig) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return NewClientWithHTTPClient(config, &http.Client{Timeout: timeout})
}

// NewClientWithHTTPClient creates a new billing API client with a custom transport
func NewClientWithHTTPClient(config *ClientConfig, httpClient Doer) *Client {
	clock := config.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	return &Client{
		endpoint:    strings.TrimRight(config.Endpoint, "/"),
		serviceName: config.ServiceName,
		headers:     config.Headers.WithDefaults(),
		clock:       clock,
		signer:      NewSigner([]byte(config.SecretKey)),
		httpClient:  httpClient,
		tracer:      otel.Tracer(tracerName),
	}
}

// Signer returns the client's signer
func (c *Client) Signer() *Signer {
	return c.signer
}

// Presign returns the absolute URL of path under the endpoint and the headers
// that authenticate a request to it, for transports the client does not drive
// itself such as websockets
func (c *Client) Presign(path string, body []byte) (*url.URL, http.Header, error) {
	u, err := url.Parse(c.endpoint + path)
	if err != nil {
		return nil, nil, &ValidationError{Verb: "presign", Reason: err.Error()}
	}
	sr, err := Sign(c.signer, FormatTimestamp(c.clock.Now()), u.RequestURI(), body)
	if err != nil {
		return nil, nil, err
	}
	return u, c.headers.Header(c.serviceName, sr), nil
}

// Response is an API response passed back unmodified
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response body into v
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// operation is one resource call, built per request and not retained
type operation struct {
	resource Resource
	verb     Verb
	method   string
	path     string
	body     []byte
}

// do sends op inside a client span
func (c *Client) do(ctx context.Context, op *operation) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "billing."+string(op.resource)+"."+string(op.verb),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("billing.resource", string(op.resource)),
			attribute.String("billing.verb", string(op.verb)),
			attribute.String("http.method", op.method),
			attribute.String("url.path", op.path),
		))
	defer span.End()

	resp, err := c.send(ctx, op)
	if resp != nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (c *Client) send(ctx context.Context, op *operation) (*Response, error) {
	var body io.Reader
	if op.body != nil {
		body = bytes.NewReader(op.body)
	}

	req, err := http.NewRequestWithContext(ctx, op.method, c.endpoint+op.path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Sign the request-target as it goes on the wire, base path included
	sr, err := Sign(c.signer, FormatTimestamp(c.clock.Now()), req.URL.RequestURI(), op.body)
	if err != nil {
		return nil, err
	}
	req.Header = c.headers.Header(c.serviceName, sr)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: op.method, Path: sr.Path, Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{
			Method:     op.method,
			Path:       sr.Path,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("failed to read response: %w", err),
		}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return resp, &TransportError{
			Method:     op.method,
			Path:       sr.Path,
			StatusCode: httpResp.StatusCode,
			Body:       respBody,
		}
	}

	return resp, nil
}
