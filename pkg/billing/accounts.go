package billing

import "context"

// AccountsList lists accounts
func (c *Client) AccountsList(ctx context.Context, filter AccountFilter) (*Page[Account], error) {
	return decodeAs[Page[Account]](c.List(ctx, Accounts, filter.Filters()))
}

// AccountsDetail fetches the account of a holder in one unit.
// holderType may be empty to use the service's default holder type.
func (c *Client) AccountsDetail(ctx context.Context, holderID, unitSymbol, holderType string) (*Account, error) {
	params := Filters{"holder_id": holderID, "unit_symbol": unitSymbol}
	if holderType != "" {
		params["holder_type"] = holderType
	}
	return decodeAs[Account](c.Detail(ctx, Accounts, params))
}

// AccountsCreate opens an account for a holder in one unit
func (c *Client) AccountsCreate(ctx context.Context, req *AccountCreate) (*Account, error) {
	return decodeAs[Account](c.Create(ctx, Accounts, req))
}

// UnitsList lists currency units
func (c *Client) UnitsList(ctx context.Context, page Pagination) (*Page[Unit], error) {
	return decodeAs[Page[Unit]](c.List(ctx, Units, page.apply(Filters{})))
}
