package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const (
	testService = "test-service"
	testSecret  = "test-secret"
)

var testTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

const testTimestamp = "2024-05-01T10:00:00.000Z"

// computeTestHMAC computes the expected signature independently of Signer
func computeTestHMAC(message string) string {
	h := hmac.New(sha256.New, []byte(testSecret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// capturedRequest is what the mock server saw
type capturedRequest struct {
	Method     string
	RequestURI string
	Header     http.Header
	Body       []byte
}

// mockServer creates a test server that validates the signature and returns response
func mockServer(t *testing.T, status int, response any) (*httptest.Server, *[]capturedRequest) {
	var (
		mu       sync.Mutex
		captured []capturedRequest
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("Failed to read body: %v", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		if got := r.Header.Get("X-SERVICE"); got != testService {
			t.Errorf("Expected service %s, got %s", testService, got)
		}
		if got := r.Header.Get("Content-Type"); got != ContentTypeJSON {
			t.Errorf("Expected Content-Type %s, got %s", ContentTypeJSON, got)
		}

		ts := r.Header.Get("X-SIGNATURE-TIMESTAMP")
		expected := computeTestHMAC(ts + "." + r.RequestURI + "." + string(body))
		if actual := r.Header.Get("X-SIGNATURE"); actual != expected {
			t.Errorf("HMAC mismatch: expected %s, got %s", expected, actual)
		}

		mu.Lock()
		captured = append(captured, capturedRequest{
			Method:     r.Method,
			RequestURI: r.RequestURI,
			Header:     r.Header.Clone(),
			Body:       body,
		})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if response != nil {
			json.NewEncoder(w).Encode(response)
		}
	}))
	t.Cleanup(server.Close)

	return server, &captured
}

// newTestClient creates a client configured for testing
func newTestClient(baseURL string) *Client {
	return NewClient(&ClientConfig{
		Endpoint:    baseURL,
		ServiceName: testService,
		SecretKey:   testSecret,
		Timeout:     5 * time.Second,
		Clock:       FixedClock(testTime),
	})
}

// spyDoer records requests without touching the network
type spyDoer struct {
	mu    sync.Mutex
	calls []*http.Request
	resp  func(*http.Request) (*http.Response, error)
}

func (d *spyDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	d.calls = append(d.calls, req)
	d.mu.Unlock()
	if d.resp != nil {
		return d.resp(req)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewReader([]byte("{}"))),
	}, nil
}

func (d *spyDoer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func newSpyClient(doer Doer, secret string) *Client {
	return NewClientWithHTTPClient(&ClientConfig{
		Endpoint:    "http://billing.test",
		ServiceName: testService,
		SecretKey:   secret,
		Clock:       FixedClock(testTime),
	}, doer)
}

func TestCreate_HoldersEndToEnd(t *testing.T) {
	server, captured := mockServer(t, http.StatusOK, map[string]any{
		"holder_id":   "h1",
		"holder_type": "player",
		"enabled":     true,
		"info":        map[string]any{},
		"created_at":  "2024-05-01T10:00:00Z",
	})

	client := newTestClient(server.URL)
	resp, err := client.Create(context.Background(), Holders, map[string]any{
		"holder_id":   "h1",
		"holder_type": "player",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/currencies/holders/create/", req.RequestURI)
	assert.Equal(t, `{"holder_id":"h1","holder_type":"player"}`, string(req.Body))
	assert.Equal(t, testTimestamp, req.Header.Get("X-SIGNATURE-TIMESTAMP"))

	want, err := NewSigner([]byte(testSecret)).Sign(
		testTimestamp + `./api/currencies/holders/create/.{"holder_id":"h1","holder_type":"player"}`)
	require.NoError(t, err)
	assert.Equal(t, want, req.Header.Get("X-SIGNATURE"))
}

func TestList_EmptyFiltersSignsTrailingDelimiter(t *testing.T) {
	server, captured := mockServer(t, http.StatusOK, Page[Holder]{Results: []Holder{}})

	client := newTestClient(server.URL)
	_, err := client.List(context.Background(), Holders, Filters{})
	require.NoError(t, err)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/api/currencies/holders/?", req.RequestURI)
	assert.Empty(t, req.Body)
	assert.Equal(t, computeTestHMAC(testTimestamp+"./api/currencies/holders/?."), req.Header.Get("X-SIGNATURE"))
}

func TestList_CommaJoinedArrays(t *testing.T) {
	server, captured := mockServer(t, http.StatusOK, Page[Holder]{})

	client := newTestClient(server.URL)
	_, err := client.List(context.Background(), Adjustments, Filters{"ids": []int{1, 2, 3}})
	require.NoError(t, err)

	require.Len(t, *captured, 1)
	assert.Equal(t, "/api/currencies/adjustments/?ids=1,2,3", (*captured)[0].RequestURI)
}

func TestDetail_Accounts(t *testing.T) {
	server, captured := mockServer(t, http.StatusOK, Account{
		HolderID:     "h1",
		CurrencyUnit: "GOLD",
		Amount:       "12.5000",
	})

	client := newTestClient(server.URL)
	account, err := client.AccountsDetail(context.Background(), "h1", "GOLD", "")
	require.NoError(t, err)
	assert.Equal(t, Amount("12.5000"), account.Amount)

	require.Len(t, *captured, 1)
	assert.Equal(t, "/api/currencies/accounts/detail/?holder_id=h1&unit_symbol=GOLD", (*captured)[0].RequestURI)
}

func TestConfirmAndReject(t *testing.T) {
	id := uuid.MustParse("6f1c3b3e-7b8a-4a53-9d0c-3a5b8b7c2e11")

	tests := []struct {
		name string
		call func(c *Client) error
		path string
	}{
		{"adjustments confirm", func(c *Client) error { return c.AdjustmentsConfirm(context.Background(), id, "ok") }, "/api/currencies/adjustments/confirm/"},
		{"adjustments reject", func(c *Client) error { return c.AdjustmentsReject(context.Background(), id, "ok") }, "/api/currencies/adjustments/reject/"},
		{"transfers confirm", func(c *Client) error { return c.TransfersConfirm(context.Background(), id, "ok") }, "/api/currencies/transfers/confirm/"},
		{"transfers reject", func(c *Client) error { return c.TransfersReject(context.Background(), id, "ok") }, "/api/currencies/transfers/reject/"},
		{"exchanges confirm", func(c *Client) error { return c.ExchangesConfirm(context.Background(), id, "ok") }, "/api/currencies/exchanges/confirm/"},
		{"exchanges reject", func(c *Client) error { return c.ExchangesReject(context.Background(), id, "ok") }, "/api/currencies/exchanges/reject/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, captured := mockServer(t, http.StatusOK, nil)
			require.NoError(t, tt.call(newTestClient(server.URL)))

			require.Len(t, *captured, 1)
			req := (*captured)[0]
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, tt.path, req.RequestURI)
			assert.Equal(t, `{"uuid":"6f1c3b3e-7b8a-4a53-9d0c-3a5b8b7c2e11","status_description":"ok"}`, string(req.Body))
		})
	}
}

func TestHoldersUpdate(t *testing.T) {
	t.Run("sends only the set fields", func(t *testing.T) {
		server, captured := mockServer(t, http.StatusOK, Holder{HolderID: "h1"})

		disabled := false
		_, err := newTestClient(server.URL).HoldersUpdate(context.Background(), "h1", HolderUpdate{Enabled: &disabled})
		require.NoError(t, err)

		require.Len(t, *captured, 1)
		assert.Equal(t, "/api/currencies/holders/update/", (*captured)[0].RequestURI)
		assert.Equal(t, `{"enabled":false,"holder_id":"h1"}`, string((*captured)[0].Body))
	})

	t.Run("no fields fails before signing or sending", func(t *testing.T) {
		doer := &spyDoer{}
		client := newSpyClient(doer, testSecret)

		_, err := client.HoldersUpdate(context.Background(), "h1", HolderUpdate{})
		require.Error(t, err)

		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Equal(t, Holders, vErr.Resource)
		assert.Equal(t, Update, vErr.Verb)
		assert.Equal(t, 0, doer.count())
		assert.Equal(t, 0, client.Signer().Derivations())
	})

	t.Run("nil values count as absent", func(t *testing.T) {
		doer := &spyDoer{}
		client := newSpyClient(doer, testSecret)

		_, err := client.Update(context.Background(), Holders,
			Filters{"holder_id": "h1"},
			Filters{"enabled": (*bool)(nil), "info": nil, "unrelated": 1})
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, 0, doer.count())
	})
}

func TestUnsupportedVerb(t *testing.T) {
	doer := &spyDoer{}
	client := newSpyClient(doer, testSecret)

	_, err := client.Create(context.Background(), Units, map[string]any{"symbol": "GOLD"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = client.Confirm(context.Background(), Holders, "id", "x")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = client.List(context.Background(), Resource("wallets"), nil)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 0, doer.count())
}

func TestNonSuccessStatus(t *testing.T) {
	server, _ := mockServer(t, http.StatusForbidden, map[string]string{"detail": "Service disabled"})

	resp, err := newTestClient(server.URL).List(context.Background(), Units, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))

	var tErr *TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, http.StatusForbidden, tErr.StatusCode)
	assert.Equal(t, http.MethodGet, tErr.Method)
	assert.Equal(t, "/api/currencies/units/?", tErr.Path)
	assert.JSONEq(t, `{"detail":"Service disabled"}`, string(tErr.Body))

	// the response is still handed back unmodified
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestNetworkErrorIsWrapped(t *testing.T) {
	netErr := errors.New("connection refused")
	doer := &spyDoer{resp: func(*http.Request) (*http.Response, error) { return nil, netErr }}

	_, err := newSpyClient(doer, testSecret).List(context.Background(), Holders, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, netErr)
}

func TestEmptySecret(t *testing.T) {
	doer := &spyDoer{}
	client := newSpyClient(doer, "")

	_, err := client.List(context.Background(), Holders, nil)
	assert.ErrorIs(t, err, ErrKeyDerivation)

	_, err = client.Create(context.Background(), Holders, &HolderCreate{HolderID: "h1"})
	assert.ErrorIs(t, err, ErrKeyDerivation)

	assert.Equal(t, 0, doer.count())
	assert.Equal(t, 1, client.Signer().Derivations())
}

func TestCustomHeaderNames(t *testing.T) {
	doer := &spyDoer{}
	client := NewClientWithHTTPClient(&ClientConfig{
		Endpoint:    "http://billing.test",
		ServiceName: testService,
		SecretKey:   testSecret,
		Headers:     HeaderNames{Service: "X-CALLER", Signature: "X-HMAC", Timestamp: "X-HMAC-TS"},
		Clock:       FixedClock(testTime),
	}, doer)

	_, err := client.List(context.Background(), Units, nil)
	require.NoError(t, err)

	require.Equal(t, 1, doer.count())
	h := doer.calls[0].Header
	assert.Equal(t, testService, h.Get("X-CALLER"))
	assert.Equal(t, computeTestHMAC(testTimestamp+"./api/currencies/units/?."), h.Get("X-HMAC"))
	assert.Equal(t, testTimestamp, h.Get("X-HMAC-TS"))
	assert.Empty(t, h.Get("X-SIGNATURE"))
}

func TestEndpointBasePathIsSigned(t *testing.T) {
	doer := &spyDoer{}
	client := NewClientWithHTTPClient(&ClientConfig{
		Endpoint:    "http://billing.test/billing/",
		ServiceName: testService,
		SecretKey:   testSecret,
		Clock:       FixedClock(testTime),
	}, doer)

	_, err := client.List(context.Background(), Units, nil)
	require.NoError(t, err)

	req := doer.calls[0]
	assert.Equal(t, "/billing/api/currencies/units/?", req.URL.RequestURI())
	assert.Equal(t, computeTestHMAC(testTimestamp+"./billing/api/currencies/units/?."), req.Header.Get("X-SIGNATURE"))
}

func TestFreshTimestampPerRequest(t *testing.T) {
	doer := &spyDoer{}
	client := NewClientWithHTTPClient(&ClientConfig{
		Endpoint:    "http://billing.test",
		ServiceName: testService,
		SecretKey:   testSecret,
		Clock:       &steppingClock{t: testTime},
	}, doer)

	for i := 0; i < 3; i++ {
		_, err := client.List(context.Background(), Units, nil)
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	for _, req := range doer.calls {
		seen[req.Header.Get("X-SIGNATURE-TIMESTAMP")] = true
	}
	assert.Len(t, seen, 3)
}

// steppingClock advances by one millisecond on every reading
type steppingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func TestConcurrentOperations(t *testing.T) {
	server, captured := mockServer(t, http.StatusOK, Page[Unit]{})
	client := newTestClient(server.URL)

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := client.UnitsList(context.Background(), Pagination{Limit: 5})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, *captured, 20)
	assert.Equal(t, 1, client.Signer().Derivations())
}

func TestTypedCreates(t *testing.T) {
	txID := uuid.New()

	tests := []struct {
		name string
		call func(c *Client) (*Transaction, error)
		path string
		body string
	}{
		{
			name: "adjustment",
			call: func(c *Client) (*Transaction, error) {
				return c.AdjustmentsCreate(context.Background(), &AdjustmentCreate{
					HolderID: "h1", UnitSymbol: "GOLD", Amount: "10.5", Description: "reward", AutoRejectTimeout: 60,
				})
			},
			path: "/api/currencies/adjustments/create/",
			body: `{"holder_id":"h1","unit_symbol":"GOLD","amount":10.5,"description":"reward","auto_reject_timeout":60}`,
		},
		{
			name: "transfer without timeout",
			call: func(c *Client) (*Transaction, error) {
				return c.TransfersCreate(context.Background(), &TransferCreate{
					FromHolderID: "h1", ToHolderID: "h2", TransferRule: "p2p", Amount: "3", Description: "gift",
				})
			},
			path: "/api/currencies/transfers/create/",
			body: `{"from_holder_id":"h1","to_holder_id":"h2","transfer_rule":"p2p","amount":3,"description":"gift"}`,
		},
		{
			name: "exchange",
			call: func(c *Client) (*Transaction, error) {
				return c.ExchangesCreate(context.Background(), &ExchangeCreate{
					HolderID: "h1", ExchangeRule: "gold-silver", FromUnit: "GOLD", ToUnit: "SILVER",
					FromAmount: "2", Description: "swap", AutoRejectTimeout: 30,
				})
			},
			path: "/api/currencies/exchanges/create/",
			body: `{"holder_id":"h1","exchange_rule":"gold-silver","from_unit":"GOLD","to_unit":"SILVER","from_amount":2,"description":"swap","auto_reject_timeout":30}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, captured := mockServer(t, http.StatusCreated, Transaction{UUID: txID, Status: StatusPending})

			tx, err := tt.call(newTestClient(server.URL))
			require.NoError(t, err)
			assert.Equal(t, txID, tx.UUID)
			assert.Equal(t, StatusPending, tx.Status)

			require.Len(t, *captured, 1)
			assert.Equal(t, tt.path, (*captured)[0].RequestURI)
			assert.Equal(t, tt.body, string((*captured)[0].Body))
		})
	}
}

func TestHoldersCreate_OmitsUnsetFields(t *testing.T) {
	server, captured := mockServer(t, http.StatusOK, Holder{HolderID: "h1", HolderType: "player", Enabled: true})

	holder, err := newTestClient(server.URL).HoldersCreate(context.Background(), &HolderCreate{HolderID: "h1"})
	require.NoError(t, err)
	assert.True(t, holder.Enabled)

	require.Len(t, *captured, 1)
	assert.Equal(t, `{"holder_id":"h1"}`, string((*captured)[0].Body))
}

func TestListDecodesPage(t *testing.T) {
	next := "http://billing.test/api/currencies/units/?limit=1&offset=1"
	server, captured := mockServer(t, http.StatusOK, Page[Unit]{
		Count:   2,
		Next:    &next,
		Results: []Unit{{Symbol: "GOLD", Measurement: "coins"}},
	})

	page, err := newTestClient(server.URL).UnitsList(context.Background(), Pagination{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
	require.NotNil(t, page.Next)
	assert.Nil(t, page.Previous)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "GOLD", page.Results[0].Symbol)

	assert.Equal(t, "/api/currencies/units/?limit=1", (*captured)[0].RequestURI)
}

func TestClient_Presign(t *testing.T) {
	client := newTestClient("http://billing.local/base/")

	u, header, err := client.Presign(APIPrefix+"events/?kind=transfers", nil)
	require.NoError(t, err)

	assert.Equal(t, "http://billing.local/base/api/currencies/events/?kind=transfers", u.String())
	assert.Equal(t, testService, header.Get("X-SERVICE"))
	assert.Equal(t, testTimestamp, header.Get("X-SIGNATURE-TIMESTAMP"))
	assert.Equal(t,
		computeTestHMAC(testTimestamp+"./base/api/currencies/events/?kind=transfers."),
		header.Get("X-SIGNATURE"))
}

func TestTypedCreates_RequireAmount(t *testing.T) {
	ctx := context.Background()
	calls := map[string]func(c *Client) error{
		"adjustment": func(c *Client) error {
			_, err := c.AdjustmentsCreate(ctx, &AdjustmentCreate{HolderID: "h1", UnitSymbol: "GOLD", Description: "reward"})
			return err
		},
		"transfer": func(c *Client) error {
			_, err := c.TransfersCreate(ctx, &TransferCreate{FromHolderID: "h1", ToHolderID: "h2", TransferRule: "p2p", Description: "gift"})
			return err
		},
		"exchange": func(c *Client) error {
			_, err := c.ExchangesCreate(ctx, &ExchangeCreate{HolderID: "h1", ExchangeRule: "gold-silver", FromUnit: "GOLD", ToUnit: "SILVER", Description: "swap"})
			return err
		},
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			doer := &spyDoer{}
			client := newSpyClient(doer, testSecret)

			err := call(client)
			require.ErrorIs(t, err, ErrValidation)
			assert.ErrorContains(t, err, "amount is required")
			assert.Equal(t, 0, doer.count())
			assert.Equal(t, 0, client.Signer().Derivations())
		})
	}
}
