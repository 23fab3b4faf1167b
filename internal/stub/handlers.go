package stub

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/alexbotov/gaming-billing/pkg/billing"
	"github.com/alexbotov/gaming-billing/pkg/billing/verify"
	"github.com/google/uuid"
)

// Response helpers

type apiError struct {
	Detail string `json:"detail"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, apiError{Detail: detail})
}

// respondLedgerError maps ledger errors to status codes
func respondLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalid):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotPending), errors.Is(err, ErrInsufficientFunds):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func parseFilter(w http.ResponseWriter, r *http.Request) (*ListFilter, bool) {
	f, err := ParseListFilter(r.URL.RawQuery)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return f, true
}

// pageLink renders the list URL of another window
func pageLink(r *http.Request, limit, offset int) *string {
	link := r.URL.Path + "?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
	return &link
}

// paginate cuts items to the filter's window
func paginate[T any](r *http.Request, f *ListFilter, items []T) billing.Page[T] {
	start, end := f.window(len(items))
	page := billing.Page[T]{Count: len(items), Results: items[start:end]}

	if f.Limit > 0 {
		if end < len(items) {
			page.Next = pageLink(r, f.Limit, end)
		}
		if start > 0 {
			prev := start - f.Limit
			if prev < 0 {
				prev = 0
			}
			page.Previous = pageLink(r, f.Limit, prev)
		}
	}
	return page
}

// === Health ===

// HealthCheck handles GET /health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// === Holders ===

// ListHolders handles GET holders/
func (s *Server) ListHolders(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, paginate(r, f, s.ledger.Holders(f)))
}

// HolderDetail handles GET holders/detail/
func (s *Server) HolderDetail(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	holderID := f.Value("holder_id")
	if holderID == "" {
		respondError(w, http.StatusBadRequest, "holder_id is required")
		return
	}

	h, err := s.ledger.Holder(holderID)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h)
}

// CreateHolder handles POST holders/create/
func (s *Server) CreateHolder(w http.ResponseWriter, r *http.Request) {
	var req billing.HolderCreate
	if !decodeBody(w, r, &req) {
		return
	}

	h, err := s.ledger.CreateHolder(&req)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h)
}

// UpdateHolder handles POST holders/update/
func (s *Server) UpdateHolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HolderID string         `json:"holder_id"`
		Enabled  *bool          `json:"enabled"`
		Info     map[string]any `json:"info"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	h, err := s.ledger.UpdateHolder(req.HolderID, billing.HolderUpdate{Enabled: req.Enabled, Info: req.Info})
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h)
}

// === Accounts & units ===

// ListAccounts handles GET accounts/
func (s *Server) ListAccounts(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, paginate(r, f, s.ledger.Accounts(f)))
}

// AccountDetail handles GET accounts/detail/
func (s *Server) AccountDetail(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	holderID, unit := f.Value("holder_id"), f.Value("unit_symbol")
	if holderID == "" || unit == "" {
		respondError(w, http.StatusBadRequest, "holder_id and unit_symbol are required")
		return
	}

	a, err := s.ledger.Account(holderID, unit)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// CreateAccount handles POST accounts/create/
func (s *Server) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req billing.AccountCreate
	if !decodeBody(w, r, &req) {
		return
	}

	a, err := s.ledger.CreateAccount(&req)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			err = errors.Join(ErrInvalid, err)
		}
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// ListUnits handles GET units/
func (s *Server) ListUnits(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, paginate(r, f, s.ledger.Units()))
}

// === Transactions ===

func callingService(r *http.Request) string {
	service, _ := verify.ServiceFromContext(r.Context())
	return service
}

// ListAdjustments handles GET adjustments/
func (s *Server) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, paginate(r, f, s.ledger.Adjustments(f)))
}

// CreateAdjustment handles POST adjustments/create/
func (s *Server) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req billing.AdjustmentCreate
	if !decodeBody(w, r, &req) {
		return
	}

	tx, err := s.ledger.CreateAdjustment(callingService(r), &req)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, tx)
}

// ListTransfers handles GET transfers/
func (s *Server) ListTransfers(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, paginate(r, f, s.ledger.Transfers(f)))
}

// CreateTransfer handles POST transfers/create/
func (s *Server) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req billing.TransferCreate
	if !decodeBody(w, r, &req) {
		return
	}

	tx, err := s.ledger.CreateTransfer(callingService(r), &req)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, tx)
}

// ListExchanges handles GET exchanges/
func (s *Server) ListExchanges(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, paginate(r, f, s.ledger.Exchanges(f)))
}

// CreateExchange handles POST exchanges/create/
func (s *Server) CreateExchange(w http.ResponseWriter, r *http.Request) {
	var req billing.ExchangeCreate
	if !decodeBody(w, r, &req) {
		return
	}

	tx, err := s.ledger.CreateExchange(callingService(r), &req)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, tx)
}

// statusChange builds the confirm or reject handler of one family
func (s *Server) statusChange(k kind, apply func(kind, uuid.UUID, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req billing.StatusChange
		if !decodeBody(w, r, &req) {
			return
		}
		id, err := uuid.Parse(req.UUID)
		if err != nil {
			respondError(w, http.StatusBadRequest, "uuid is not a valid UUID")
			return
		}
		if req.StatusDescription == "" {
			respondError(w, http.StatusBadRequest, "status_description is required")
			return
		}

		if err := apply(k, id, req.StatusDescription); err != nil {
			respondLedgerError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, nil)
	}
}
