// Package prover implements the client side of the Chaum-Pedersen login:
// holding the secret, deriving the credential, committing to a fresh
// ephemeral per attempt and answering the verifier's challenge.
package prover

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/allsmog/zkcp-go/pkg/crypto/chaumpedersen"
	"golang.org/x/crypto/argon2"
)

// ErrNoCommitment is returned by Respond when no commitment is pending
var ErrNoCommitment = errors.New("no pending commitment")

// Argon2id cost parameters for SecretFromPassphrase
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// Prover holds a secret exponent and the ephemeral of the login in flight.
// Each ephemeral answers at most one challenge.
type Prover struct {
	zkp      *chaumpedersen.Protocol
	identity string
	secret   *big.Int

	mu      sync.Mutex
	pending *big.Int
}

// New creates a prover for identity with the given secret
func New(zkp *chaumpedersen.Protocol, identity string, secret *big.Int) (*Prover, error) {
	if secret == nil || secret.Sign() <= 0 || secret.Cmp(zkp.Params().Order()) >= 0 {
		return nil, fmt.Errorf("%w: secret must lie in [1, order)", chaumpedersen.ErrOperand)
	}

	return &Prover{
		zkp:      zkp,
		identity: identity,
		secret:   new(big.Int).Set(secret),
	}, nil
}

// Generate creates a prover with a random secret
func Generate(zkp *chaumpedersen.Protocol, identity string) (*Prover, error) {
	secret, err := zkp.RandomExponent()
	if err != nil {
		return nil, err
	}
	return New(zkp, identity, secret)
}

// FromPassphrase creates a prover whose secret is derived from a passphrase
func FromPassphrase(zkp *chaumpedersen.Protocol, identity, passphrase string) (*Prover, error) {
	return New(zkp, identity, SecretFromPassphrase(zkp.Params().Order(), identity, passphrase))
}

// SecretFromPassphrase stretches passphrase with Argon2id, salted by the
// identity, and maps the result into [1, order). The same inputs always
// give the same secret.
func SecretFromPassphrase(order *big.Int, identity, passphrase string) *big.Int {
	salt := []byte("zkcp/1/secret:" + identity)
	keyLen := uint32((order.BitLen()+256+7)/8)

	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, keyLen)

	span := new(big.Int).Sub(order, big.NewInt(1))
	x := new(big.Int).SetBytes(key)
	x.Mod(x, span)
	return x.Add(x, big.NewInt(1))
}

// Identity returns the identity the prover logs in as
func (p *Prover) Identity() string {
	return p.identity
}

// Protocol returns the engine the prover computes with
func (p *Prover) Protocol() *chaumpedersen.Protocol {
	return p.zkp
}

// Credential returns the registration values (v1, v2)
func (p *Prover) Credential() (*big.Int, *big.Int, error) {
	return p.zkp.DeriveCredential(p.secret)
}

// Commit draws a fresh ephemeral and returns its commitment (r1, r2).
// Any earlier pending ephemeral is discarded.
func (p *Prover) Commit() (*big.Int, *big.Int, error) {
	k, err := p.zkp.RandomExponent()
	if err != nil {
		return nil, nil, err
	}

	r1, r2, err := p.zkp.DeriveCommitment(k)
	if err != nil {
		return nil, nil, err
	}

	p.mu.Lock()
	p.pending = k
	p.mu.Unlock()

	return r1, r2, nil
}

// Respond answers challenge c with the pending ephemeral and forgets it
func (p *Prover) Respond(c *big.Int) (*big.Int, error) {
	p.mu.Lock()
	k := p.pending
	p.pending = nil
	p.mu.Unlock()

	if k == nil {
		return nil, ErrNoCommitment
	}

	return p.zkp.ComputeResponse(k, c, p.secret)
}
