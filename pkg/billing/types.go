package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Amount is a decimal quantity kept as text so no precision is lost.
// It is sent as a JSON number and read from either a number or a string.
type Amount string

// AmountFromFloat formats f in its shortest exact decimal form
func AmountFromFloat(f float64) Amount {
	return Amount(strconv.FormatFloat(f, 'f', -1, 64))
}

// Float64 parses the amount
func (a Amount) Float64() (float64, error) {
	return strconv.ParseFloat(string(a), 64)
}

func (a Amount) String() string {
	return string(a)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if a == "" {
		return []byte("null"), nil
	}
	if !validAmount(string(a)) {
		return nil, fmt.Errorf("invalid amount %q", string(a))
	}
	return []byte(a), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	if !validAmount(string(data)) {
		return fmt.Errorf("invalid amount %q", string(data))
	}
	*a = Amount(data)
	return nil
}

// validAmount accepts JSON number literals only (no NaN, Inf or hex)
func validAmount(s string) bool {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return false
	}
	var n json.Number
	return json.Unmarshal([]byte(s), &n) == nil
}

// TransactionStatus is the lifecycle state of an adjustment, transfer or exchange
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusConfirmed TransactionStatus = "confirmed"
	StatusRejected  TransactionStatus = "rejected"
)

// Page is one page of a limit/offset paginated list
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// Holder is an account-owning entity, e.g. a player
type Holder struct {
	HolderID   string         `json:"holder_id"`
	HolderType string         `json:"holder_type"`
	Enabled    bool           `json:"enabled"`
	Info       map[string]any `json:"info"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Account is a holder's balance in one unit
type Account struct {
	HolderID     string    `json:"holder_id"`
	HolderType   string    `json:"holder_type,omitempty"`
	CurrencyUnit string    `json:"currency_unit"`
	Amount       Amount    `json:"amount"`
	CreatedAt    time.Time `json:"created_at"`
}

// Unit is a currency or denomination type
type Unit struct {
	Symbol      string `json:"symbol"`
	Measurement string `json:"measurement"`
}

// Transaction is the outcome of creating an adjustment, transfer or exchange
type Transaction struct {
	UUID   uuid.UUID         `json:"uuid"`
	Status TransactionStatus `json:"status,omitempty"`
	Amount Amount            `json:"amount,omitempty"`
}

// Adjustment is a unilateral balance change on a holder's account
type Adjustment struct {
	UUID            uuid.UUID         `json:"uuid"`
	Service         string            `json:"service"`
	Status          TransactionStatus `json:"status"`
	HolderID        string            `json:"holder_id"`
	Unit            string            `json:"unit"`
	Amount          Amount            `json:"amount"`
	Description     string            `json:"description,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	ClosedAt        *time.Time        `json:"closed_at"`
	AutoRejectAfter *time.Time        `json:"auto_reject_after"`
}

// Transfer moves a balance between two holders
type Transfer struct {
	UUID            uuid.UUID         `json:"uuid"`
	Service         string            `json:"service"`
	Status          TransactionStatus `json:"status"`
	FromHolderID    string            `json:"from_holder_id"`
	ToHolderID      string            `json:"to_holder_id"`
	TransferRule    string            `json:"transfer_rule"`
	Amount          Amount            `json:"amount"`
	Description     string            `json:"description,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	ClosedAt        *time.Time        `json:"closed_at"`
	AutoRejectAfter *time.Time        `json:"auto_reject_after"`
}

// Exchange converts between units for one holder
type Exchange struct {
	UUID            uuid.UUID         `json:"uuid"`
	Service         string            `json:"service"`
	Status          TransactionStatus `json:"status"`
	HolderID        string            `json:"holder_id"`
	ExchangeRule    string            `json:"exchange_rule"`
	FromUnit        string            `json:"from_unit"`
	ToUnit          string            `json:"to_unit"`
	FromAmount      Amount            `json:"from_amount"`
	ToAmount        Amount            `json:"to_amount"`
	Description     string            `json:"description,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	ClosedAt        *time.Time        `json:"closed_at"`
	AutoRejectAfter *time.Time        `json:"auto_reject_after"`
}

// HolderCreate is the request body of holders/create.
// HolderType and Info are omitted when unset; the service applies its defaults.
type HolderCreate struct {
	HolderID   string         `json:"holder_id"`
	HolderType string         `json:"holder_type,omitempty"`
	Info       map[string]any `json:"info,omitempty"`
}

// HolderUpdate holds the mutable holder fields. At least one must be set.
type HolderUpdate struct {
	Enabled *bool
	Info    map[string]any
}

// AccountCreate is the request body of accounts/create
type AccountCreate struct {
	HolderID   string `json:"holder_id"`
	UnitSymbol string `json:"unit_symbol"`
	HolderType string `json:"holder_type,omitempty"`
}

// AdjustmentCreate is the request body of adjustments/create.
// AutoRejectTimeout is in seconds; zero leaves the service default.
type AdjustmentCreate struct {
	HolderID          string `json:"holder_id"`
	UnitSymbol        string `json:"unit_symbol"`
	Amount            Amount `json:"amount"`
	Description       string `json:"description"`
	AutoRejectTimeout int    `json:"auto_reject_timeout,omitempty"`
}

// TransferCreate is the request body of transfers/create
type TransferCreate struct {
	FromHolderID      string `json:"from_holder_id"`
	ToHolderID        string `json:"to_holder_id"`
	TransferRule      string `json:"transfer_rule"`
	Amount            Amount `json:"amount"`
	Description       string `json:"description"`
	AutoRejectTimeout int    `json:"auto_reject_timeout,omitempty"`
}

// ExchangeCreate is the request body of exchanges/create
type ExchangeCreate struct {
	HolderID          string `json:"holder_id"`
	ExchangeRule      string `json:"exchange_rule"`
	FromUnit          string `json:"from_unit"`
	ToUnit            string `json:"to_unit"`
	FromAmount        Amount `json:"from_amount"`
	Description       string `json:"description"`
	AutoRejectTimeout int    `json:"auto_reject_timeout,omitempty"`
}

// Pagination selects a window of a list
type Pagination struct {
	Limit  int
	Offset int
}

func (p Pagination) apply(f Filters) Filters {
	if p.Limit > 0 {
		f["limit"] = p.Limit
	}
	if p.Offset > 0 {
		f["offset"] = p.Offset
	}
	return f
}

// HolderFilter narrows holders/ lists
type HolderFilter struct {
	Pagination
	HolderType    string
	CreatedAfter  time.Time
	CreatedBefore time.Time
}

// Filters converts the filter to query parameters, leaving out zero values
func (f HolderFilter) Filters() Filters {
	out := Filters{}
	if f.HolderType != "" {
		out["holder_type"] = f.HolderType
	}
	if !f.CreatedAfter.IsZero() {
		out["created_at_after"] = f.CreatedAfter
	}
	if !f.CreatedBefore.IsZero() {
		out["created_at_before"] = f.CreatedBefore
	}
	return f.apply(out)
}

// AccountFilter narrows accounts/ lists
type AccountFilter struct {
	Pagination
	HolderIDs   []string
	UnitSymbols []string
	HolderType  string
}

// Filters converts the filter to query parameters, leaving out zero values
func (f AccountFilter) Filters() Filters {
	out := Filters{}
	if len(f.HolderIDs) > 0 {
		out["holder_id"] = f.HolderIDs
	}
	if len(f.UnitSymbols) > 0 {
		out["unit"] = f.UnitSymbols
	}
	if f.HolderType != "" {
		out["holder_type"] = f.HolderType
	}
	return f.apply(out)
}

// TransactionFilter narrows adjustments/, transfers/ and exchanges/ lists
type TransactionFilter struct {
	Pagination
	Services      []string
	Statuses      []TransactionStatus
	HolderIDs     []string
	Units         []string
	Amount        Amount
	CreatedAfter  time.Time
	CreatedBefore time.Time
	ClosedAfter   time.Time
	ClosedBefore  time.Time
	Ordering      string
}

// Filters converts the filter to query parameters, leaving out zero values
func (f TransactionFilter) Filters() Filters {
	out := Filters{}
	if len(f.Services) > 0 {
		out["service"] = f.Services
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		out["status"] = statuses
	}
	if len(f.HolderIDs) > 0 {
		out["holder"] = f.HolderIDs
	}
	if len(f.Units) > 0 {
		out["currency_unit"] = f.Units
	}
	if f.Amount != "" {
		out["amount"] = string(f.Amount)
	}
	times := map[string]time.Time{
		"created_at_after":  f.CreatedAfter,
		"created_at_before": f.CreatedBefore,
		"closed_at_after":   f.ClosedAfter,
		"closed_at_before":  f.ClosedBefore,
	}
	for k, t := range times {
		if !t.IsZero() {
			out[k] = t
		}
	}
	if f.Ordering != "" {
		out["ordering"] = f.Ordering
	}
	return f.apply(out)
}
