package billing

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrKeyDerivation = errors.New("key derivation failed")
	ErrTransport     = errors.New("transport failed")
	ErrEmptySecret   = errors.New("secret key is empty")
)

// ValidationError is a local precondition failure. It never reaches the network.
type ValidationError struct {
	Resource Resource
	Verb     Verb
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("billing: %s: %s", e.Verb, e.Reason)
	}
	return fmt.Sprintf("billing: %s %s: %s", e.Resource, e.Verb, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// KeyDerivationError means the Signer could not derive its key.
// It is permanent for the Signer that returned it.
type KeyDerivationError struct {
	Err error
}

func (e *KeyDerivationError) Error() string {
	return fmt.Sprintf("billing: key derivation failed: %v", e.Err)
}

func (e *KeyDerivationError) Unwrap() error {
	return e.Err
}

func (e *KeyDerivationError) Is(target error) bool {
	return target == ErrKeyDerivation
}

// TransportError carries a network failure or a non-2xx response.
// For non-2xx responses Err is nil and StatusCode/Body describe the reply.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("billing: %s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("billing: %s %s: unexpected status %d %s",
		e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
