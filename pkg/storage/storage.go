package storage

import (
	"errors"
	"math/big"
	"time"
)

// Credential holds the public values a prover registered
type Credential struct {
	Identity     string    `json:"identity"`
	V1           *big.Int  `json:"v1"` // G^x mod p
	V2           *big.Int  `json:"v2"` // H^x mod p
	RegisteredAt time.Time `json:"registered_at"`
}

// Clone returns a deep copy
func (c Credential) Clone() Credential {
	c.V1 = cloneInt(c.V1)
	c.V2 = cloneInt(c.V2)
	return c
}

// Challenge holds the per-login state between issuing a challenge and
// checking the response
type Challenge struct {
	Identity string    `json:"identity"`
	R1       *big.Int  `json:"r1"` // G^k mod p
	R2       *big.Int  `json:"r2"` // H^k mod p
	C        *big.Int  `json:"c"`  // Challenge scalar
	IssuedAt time.Time `json:"issued_at"`
}

// Clone returns a deep copy
func (c Challenge) Clone() Challenge {
	c.R1 = cloneInt(c.R1)
	c.R2 = cloneInt(c.R2)
	c.C = cloneInt(c.C)
	return c
}

// Store is a keyed record store with distinct insert-once and upsert writes
type Store[V any] interface {
	// Insert adds value under key, failing with ErrAlreadyExists if the key
	// is present
	Insert(key string, value V) error

	// Put stores value under key unconditionally and returns the value it
	// replaced, if any
	Put(key string, value V) (previous V, replaced bool, err error)

	// Get retrieves the value under key or ErrNotFound
	Get(key string) (V, error)

	// Exists reports whether key is present
	Exists(key string) (bool, error)

	// Delete removes and returns the value under key or ErrNotFound
	Delete(key string) (V, error)
}

// CredentialStore stores credentials by identity
type CredentialStore = Store[Credential]

// ChallengeStore stores outstanding challenges by identity
type ChallengeStore = Store[Challenge]

// Cloner is implemented by values that need a deep copy when crossing the
// store boundary
type Cloner[V any] interface {
	Clone() V
}

var (
	// ErrAlreadyExists indicates an insert for a key that is present
	ErrAlreadyExists = errors.New("value already exists")

	// ErrNotFound indicates a key that is not present
	ErrNotFound = errors.New("value not found")
)

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
