// Package billing provides a client for the gaming billing currencies API.
//
// The API manages holders (account-owning entities such as players), their
// accounts, currency units, and state-changing operations: adjustments,
// transfers and exchanges, each confirmed or rejected after creation.
//
// # Authentication
//
// Every request carries three headers:
//   - X-SERVICE: the calling service's name
//   - X-SIGNATURE: hex HMAC-SHA256 of the canonical message
//   - X-SIGNATURE-TIMESTAMP: the timestamp used in the canonical message
//
// The canonical message is
//
//	<timestamp>.<request path with query>.<body>
//
// where the timestamp is UTC with millisecond precision (2024-05-01T10:00:00.000Z)
// and the body segment is empty for GET requests. The receiver recomputes the
// signature and rejects requests whose timestamp falls outside its window.
// Header names can be overridden through ClientConfig.Headers.
//
// # Basic Usage
//
//	client := billing.NewClient(&billing.ClientConfig{
//	    Endpoint:    "https://billing.example.com",
//	    ServiceName: "game-server",
//	    SecretKey:   os.Getenv("BILLING_SECRET"),
//	})
//
//	holder, err := client.HoldersCreate(ctx, &billing.HolderCreate{
//	    HolderID:   "player-1",
//	    HolderType: "player",
//	})
//
//	tx, err := client.AdjustmentsCreate(ctx, &billing.AdjustmentCreate{
//	    HolderID:    "player-1",
//	    UnitSymbol:  "GOLD",
//	    Amount:      "100",
//	    Description: "daily reward",
//	})
//	err = client.AdjustmentsConfirm(ctx, tx.UUID, "granted")
//
// The typed methods are thin wrappers over the generic verbs List, Detail,
// Create, Update, Confirm and Reject, which take a Resource and return the
// raw *Response.
//
// # Error Handling
//
// Errors fall into three kinds, matched with errors.Is:
//
//	_, err := client.HoldersUpdate(ctx, "player-1", billing.HolderUpdate{})
//	switch {
//	case errors.Is(err, billing.ErrValidation):
//	    // rejected locally, nothing was sent
//	case errors.Is(err, billing.ErrKeyDerivation):
//	    // the secret key is unusable; build a new client
//	case errors.Is(err, billing.ErrTransport):
//	    // network failure or non-2xx; see *billing.TransportError
//	}
package billing
