package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
)

// List fetches a page of the family's collection.
// The query always follows a '?', even when filters is empty.
func (c *Client) List(ctx context.Context, res Resource, filters Filters) (*Response, error) {
	if err := res.check(List); err != nil {
		return nil, err
	}
	return c.do(ctx, &operation{
		resource: res,
		verb:     List,
		method:   http.MethodGet,
		path:     withQuery(res.Path(List), filters),
	})
}

// Detail fetches one item by its identifying parameters.
// Missing parameters are left for the remote service to reject.
func (c *Client) Detail(ctx context.Context, res Resource, params Filters) (*Response, error) {
	if err := res.check(Detail); err != nil {
		return nil, err
	}
	return c.do(ctx, &operation{
		resource: res,
		verb:     Detail,
		method:   http.MethodGet,
		path:     withQuery(res.Path(Detail), params),
	})
}

// Create posts payload to the family's create endpoint.
// The payload is serialized once; those bytes are both signed and sent.
func (c *Client) Create(ctx context.Context, res Resource, payload any) (*Response, error) {
	if err := res.check(Create); err != nil {
		return nil, err
	}
	return c.post(ctx, res, Create, payload)
}

// StatusChange is the payload of confirm and reject
type StatusChange struct {
	UUID              string `json:"uuid"`
	StatusDescription string `json:"status_description"`
}

// Confirm confirms a pending transaction
func (c *Client) Confirm(ctx context.Context, res Resource, uuid, statusDescription string) (*Response, error) {
	if err := res.check(Confirm); err != nil {
		return nil, err
	}
	return c.post(ctx, res, Confirm, &StatusChange{UUID: uuid, StatusDescription: statusDescription})
}

// Reject rejects a pending transaction
func (c *Client) Reject(ctx context.Context, res Resource, uuid, statusDescription string) (*Response, error) {
	if err := res.check(Reject); err != nil {
		return nil, err
	}
	return c.post(ctx, res, Reject, &StatusChange{UUID: uuid, StatusDescription: statusDescription})
}

// Update changes the mutable fields of one item.
// Nil fields are dropped; if none of the family's mutable fields remain the
// call fails with a ValidationError before anything is signed or sent.
func (c *Client) Update(ctx context.Context, res Resource, id Filters, fields Filters) (*Response, error) {
	if err := res.check(Update); err != nil {
		return nil, err
	}

	payload := make(map[string]any, len(id)+len(fields))
	for k, v := range id {
		payload[k] = v
	}

	present := 0
	for _, name := range res.UpdateFields() {
		v, ok := fields[name]
		if !ok || isNil(v) {
			continue
		}
		payload[name] = v
		present++
	}
	if present == 0 {
		return nil, &ValidationError{Resource: res, Verb: Update, Reason: "no parameters are set"}
	}

	return c.post(ctx, res, Update, payload)
}

func (c *Client) post(ctx context.Context, res Resource, verb Verb, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, &operation{
		resource: res,
		verb:     verb,
		method:   http.MethodPost,
		path:     res.Path(verb),
		body:     body,
	})
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
