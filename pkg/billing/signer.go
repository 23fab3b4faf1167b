package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// signerState tracks the lifecycle of a Signer's key
type signerState int

const (
	stateUninitialized signerState = iota
	stateDeriving
	stateReady
	stateFailed
)

func (s signerState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateDeriving:
		return "deriving"
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// signingKey is derived key material that can only produce MACs
type signingKey struct {
	material []byte
}

func (k *signingKey) mac(message string) string {
	h := hmac.New(sha256.New, k.material)
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// Signer computes request signatures from a service secret.
//
// The signing key is derived on first use and cached for the lifetime of
// the Signer. Once derived, the raw secret is wiped and cannot be read back.
// A Signer whose derivation failed returns the same error forever.
type Signer struct {
	mu          sync.Mutex
	state       signerState
	secret      []byte
	key         *signingKey
	err         error
	derivations int
}

// NewSigner creates a Signer holding a private copy of secret
func NewSigner(secret []byte) *Signer {
	s := &Signer{state: stateUninitialized}
	if len(secret) > 0 {
		s.secret = make([]byte, len(secret))
		copy(s.secret, secret)
	}
	return s
}

// Derive forces key derivation. Calling it again after success is a no-op.
func (s *Signer) Derive() error {
	_, err := s.signingKey()
	return err
}

// Sign returns the lowercase hex HMAC-SHA256 of message
func (s *Signer) Sign(message string) (string, error) {
	key, err := s.signingKey()
	if err != nil {
		return "", err
	}
	return key.mac(message), nil
}

// Derivations reports how many times key derivation has run (0 or 1)
func (s *Signer) Derivations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.derivations
}

// String never prints key material
func (s *Signer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return "billing.Signer{state: " + s.state.String() + "}"
}

// GoString never prints key material
func (s *Signer) GoString() string {
	return s.String()
}

func (s *Signer) signingKey() (*signingKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateReady:
		return s.key, nil
	case stateFailed:
		return nil, s.err
	}

	s.state = stateDeriving
	key, err := s.derive()
	if err != nil {
		s.state = stateFailed
		s.err = err
		return nil, err
	}

	s.key = key
	s.state = stateReady
	return key, nil
}

// derive consumes the secret. Must be called with mu held.
func (s *Signer) derive() (*signingKey, error) {
	s.derivations++

	if len(s.secret) == 0 {
		return nil, &KeyDerivationError{Err: ErrEmptySecret}
	}

	material := make([]byte, len(s.secret))
	copy(material, s.secret)

	for i := range s.secret {
		s.secret[i] = 0
	}
	s.secret = nil

	return &signingKey{material: material}, nil
}
