package billing

import "context"

// decodeAs unmarshals a successful response into a new T
func decodeAs[T any](resp *Response, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	var out T
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HoldersList lists holders, newest first
func (c *Client) HoldersList(ctx context.Context, filter HolderFilter) (*Page[Holder], error) {
	return decodeAs[Page[Holder]](c.List(ctx, Holders, filter.Filters()))
}

// HoldersDetail fetches one holder
func (c *Client) HoldersDetail(ctx context.Context, holderID string) (*Holder, error) {
	return decodeAs[Holder](c.Detail(ctx, Holders, Filters{"holder_id": holderID}))
}

// HoldersCreate creates a holder, or returns the existing one with that id
func (c *Client) HoldersCreate(ctx context.Context, req *HolderCreate) (*Holder, error) {
	return decodeAs[Holder](c.Create(ctx, Holders, req))
}

// HoldersUpdate changes a holder's enabled flag and/or info.
// It fails with a ValidationError when neither is set.
func (c *Client) HoldersUpdate(ctx context.Context, holderID string, upd HolderUpdate) (*Holder, error) {
	fields := Filters{}
	if upd.Enabled != nil {
		fields["enabled"] = *upd.Enabled
	}
	if upd.Info != nil {
		fields["info"] = upd.Info
	}
	return decodeAs[Holder](c.Update(ctx, Holders, Filters{"holder_id": holderID}, fields))
}
