package stub

import (
	"net/http"
	"strings"

	"github.com/alexbotov/gaming-billing/pkg/billing"
	"github.com/gorilla/mux"
)

// SetupRouter creates and configures the HTTP router
func (s *Server) SetupRouter() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(NotFoundHandler)

	// Apply global middleware
	r.Use(s.RecoveryMiddleware)
	r.Use(s.LoggingMiddleware)

	// Public routes
	r.HandleFunc("/health", s.HealthCheck).Methods("GET")

	// Signed routes
	api := r.PathPrefix(strings.TrimSuffix(billing.APIPrefix, "/")).Subrouter()
	api.Use(s.verifier.Middleware)

	api.HandleFunc("/holders/", s.ListHolders).Methods("GET")
	api.HandleFunc("/holders/detail/", s.HolderDetail).Methods("GET")
	api.HandleFunc("/holders/create/", s.CreateHolder).Methods("POST")
	api.HandleFunc("/holders/update/", s.UpdateHolder).Methods("POST")

	api.HandleFunc("/accounts/", s.ListAccounts).Methods("GET")
	api.HandleFunc("/accounts/detail/", s.AccountDetail).Methods("GET")
	api.HandleFunc("/accounts/create/", s.CreateAccount).Methods("POST")

	api.HandleFunc("/units/", s.ListUnits).Methods("GET")

	api.HandleFunc("/adjustments/", s.ListAdjustments).Methods("GET")
	api.HandleFunc("/adjustments/create/", s.CreateAdjustment).Methods("POST")
	api.HandleFunc("/adjustments/confirm/", s.statusChange(kindAdjustment, s.ledger.Confirm)).Methods("POST")
	api.HandleFunc("/adjustments/reject/", s.statusChange(kindAdjustment, s.ledger.Reject)).Methods("POST")

	api.HandleFunc("/transfers/", s.ListTransfers).Methods("GET")
	api.HandleFunc("/transfers/create/", s.CreateTransfer).Methods("POST")
	api.HandleFunc("/transfers/confirm/", s.statusChange(kindTransfer, s.ledger.Confirm)).Methods("POST")
	api.HandleFunc("/transfers/reject/", s.statusChange(kindTransfer, s.ledger.Reject)).Methods("POST")

	api.HandleFunc("/exchanges/", s.ListExchanges).Methods("GET")
	api.HandleFunc("/exchanges/create/", s.CreateExchange).Methods("POST")
	api.HandleFunc("/exchanges/confirm/", s.statusChange(kindExchange, s.ledger.Confirm)).Methods("POST")
	api.HandleFunc("/exchanges/reject/", s.statusChange(kindExchange, s.ledger.Reject)).Methods("POST")

	api.HandleFunc("/events/", s.HandleEvents).Methods("GET")

	return r
}

// NotFoundHandler handles 404 errors
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusNotFound, "Not found.")
}
