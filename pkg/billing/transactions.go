package billing

import (
	"context"

	"github.com/google/uuid"
)

// requireAmount rejects a create payload whose amount was left unset, which
// would otherwise be signed and sent as null
func requireAmount(res Resource, field string, a Amount) error {
	if a == "" {
		return &ValidationError{Resource: res, Verb: Create, Reason: field + " is required"}
	}
	return nil
}

// AdjustmentsList lists adjustments
func (c *Client) AdjustmentsList(ctx context.Context, filter TransactionFilter) (*Page[Adjustment], error) {
	return decodeAs[Page[Adjustment]](c.List(ctx, Adjustments, filter.Filters()))
}

// AdjustmentsCreate opens a pending adjustment
func (c *Client) AdjustmentsCreate(ctx context.Context, req *AdjustmentCreate) (*Transaction, error) {
	if err := requireAmount(Adjustments, "amount", req.Amount); err != nil {
		return nil, err
	}
	return decodeAs[Transaction](c.Create(ctx, Adjustments, req))
}

// AdjustmentsConfirm applies a pending adjustment
func (c *Client) AdjustmentsConfirm(ctx context.Context, id uuid.UUID, statusDescription string) error {
	_, err := c.Confirm(ctx, Adjustments, id.String(), statusDescription)
	return err
}

// AdjustmentsReject discards a pending adjustment
func (c *Client) AdjustmentsReject(ctx context.Context, id uuid.UUID, statusDescription string) error {
	_, err := c.Reject(ctx, Adjustments, id.String(), statusDescription)
	return err
}

// TransfersList lists transfers
func (c *Client) TransfersList(ctx context.Context, filter TransactionFilter) (*Page[Transfer], error) {
	return decodeAs[Page[Transfer]](c.List(ctx, Transfers, filter.Filters()))
}

// TransfersCreate opens a pending transfer between two holders
func (c *Client) TransfersCreate(ctx context.Context, req *TransferCreate) (*Transaction, error) {
	if err := requireAmount(Transfers, "amount", req.Amount); err != nil {
		return nil, err
	}
	return decodeAs[Transaction](c.Create(ctx, Transfers, req))
}

// TransfersConfirm applies a pending transfer
func (c *Client) TransfersConfirm(ctx context.Context, id uuid.UUID, statusDescription string) error {
	_, err := c.Confirm(ctx, Transfers, id.String(), statusDescription)
	return err
}

// TransfersReject discards a pending transfer
func (c *Client) TransfersReject(ctx context.Context, id uuid.UUID, statusDescription string) error {
	_, err := c.Reject(ctx, Transfers, id.String(), statusDescription)
	return err
}

// ExchangesList lists exchanges
func (c *Client) ExchangesList(ctx context.Context, filter TransactionFilter) (*Page[Exchange], error) {
	return decodeAs[Page[Exchange]](c.List(ctx, Exchanges, filter.Filters()))
}

// ExchangesCreate opens a pending exchange between two units
func (c *Client) ExchangesCreate(ctx context.Context, req *ExchangeCreate) (*Transaction, error) {
	if err := requireAmount(Exchanges, "from_amount", req.FromAmount); err != nil {
		return nil, err
	}
	return decodeAs[Transaction](c.Create(ctx, Exchanges, req))
}

// ExchangesConfirm applies a pending exchange
func (c *Client) ExchangesConfirm(ctx context.Context, id uuid.UUID, statusDescription string) error {
	_, err := c.Confirm(ctx, Exchanges, id.String(), statusDescription)
	return err
}

// ExchangesReject discards a pending exchange
func (c *Client) ExchangesReject(ctx context.Context, id uuid.UUID, statusDescription string) error {
	_, err := c.Reject(ctx, Exchanges, id.String(), statusDescription)
	return err
}
