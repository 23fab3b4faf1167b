package billing

import (
	"net/http"
	"strings"
	"time"
)

// TimestampLayout is ISO-8601 UTC with millisecond precision and a literal Z
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// ContentTypeJSON is sent with every request
const ContentTypeJSON = "application/json"

// Clock provides the current time for request timestamps
type Clock interface {
	Now() time.Time
}

// SystemClock uses the system time
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time {
	return c.t
}

// FixedClock returns a Clock that always reports t
func FixedClock(t time.Time) Clock {
	return fixedClock{t: t}
}

// FormatTimestamp renders t the way it is signed and sent
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// CanonicalMessage builds "<timestamp>.<path>.<body>".
// A nil or empty body leaves the trailing delimiter in place.
func CanonicalMessage(timestamp, path string, body []byte) string {
	var b strings.Builder
	b.Grow(len(timestamp) + len(path) + len(body) + 2)
	b.WriteString(timestamp)
	b.WriteByte('.')
	b.WriteString(path)
	b.WriteByte('.')
	b.Write(body)
	return b.String()
}

// SignedRequest is the signed view of one outgoing request
type SignedRequest struct {
	Timestamp string
	Path      string
	Body      []byte
	Signature string
}

// Message returns the canonical message the signature covers
func (r *SignedRequest) Message() string {
	return CanonicalMessage(r.Timestamp, r.Path, r.Body)
}

// HeaderNames holds the configurable authentication header names
type HeaderNames struct {
	Service   string
	Signature string
	Timestamp string
}

// DefaultHeaderNames returns X-SERVICE, X-SIGNATURE and X-SIGNATURE-TIMESTAMP
func DefaultHeaderNames() HeaderNames {
	return HeaderNames{
		Service:   "X-SERVICE",
		Signature: "X-SIGNATURE",
		Timestamp: "X-SIGNATURE-TIMESTAMP",
	}
}

// WithDefaults returns h with empty names replaced by the defaults
func (h HeaderNames) WithDefaults() HeaderNames {
	d := DefaultHeaderNames()
	if h.Service == "" {
		h.Service = d.Service
	}
	if h.Signature == "" {
		h.Signature = d.Signature
	}
	if h.Timestamp == "" {
		h.Timestamp = d.Timestamp
	}
	return h
}

// Sign signs timestamp, path and body with signer
func Sign(signer *Signer, timestamp, path string, body []byte) (*SignedRequest, error) {
	signature, err := signer.Sign(CanonicalMessage(timestamp, path, body))
	if err != nil {
		return nil, err
	}
	return &SignedRequest{
		Timestamp: timestamp,
		Path:      path,
		Body:      body,
		Signature: signature,
	}, nil
}

// Header builds the authentication headers for sr
func (h HeaderNames) Header(serviceName string, sr *SignedRequest) http.Header {
	// Set canonicalizes keys; the remote side reads them case-insensitively
	header := make(http.Header, 4)
	header.Set(h.Service, serviceName)
	header.Set(h.Signature, sr.Signature)
	header.Set(h.Timestamp, sr.Timestamp)
	header.Set("Content-Type", ContentTypeJSON)
	return header
}
