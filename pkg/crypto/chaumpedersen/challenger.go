package chaumpedersen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// Challenger produces challenge scalars. Implementations must be safe for
// concurrent use and must return values in [0, bound).
//
// Production code uses SecureChallenger. Deterministic implementations for
// tests live in the cptest package and are never selected by default.
type Challenger interface {
	Challenge(bound *big.Int) (*big.Int, error)
}

// SecureChallenger draws challenges uniformly from a cryptographically
// secure source.
type SecureChallenger struct {
	rand io.Reader
}

// NewSecureChallenger returns a challenger backed by crypto/rand.
func NewSecureChallenger() *SecureChallenger {
	return &SecureChallenger{rand: rand.Reader}
}

// Challenge implements Challenger.
func (s *SecureChallenger) Challenge(bound *big.Int) (*big.Int, error) {
	return sample(s.rand, bound)
}

// RandomExponent draws a non-zero exponent uniformly from [1, Order), for
// use as a long-term or ephemeral secret.
func (p *Protocol) RandomExponent() (*big.Int, error) {
	return RandomExponent(rand.Reader, p.params.Order())
}

// RandomExponent draws uniformly from [1, order) using r.
func RandomExponent(r io.Reader, order *big.Int) (*big.Int, error) {
	if order == nil || order.Cmp(big.NewInt(2)) < 0 {
		return nil, fmt.Errorf("%w: order must be at least 2", ErrMath)
	}

	v, err := sample(r, new(big.Int).Sub(order, big.NewInt(1)))
	if err != nil {
		return nil, err
	}
	return v.Add(v, big.NewInt(1)), nil
}

func sample(r io.Reader, bound *big.Int) (*big.Int, error) {
	if bound == nil || bound.Sign() <= 0 {
		return nil, errors.New("sampling bound must be positive")
	}

	v, err := rand.Int(r, bound)
	if err != nil {
		return nil, fmt.Errorf("failed to read randomness: %w", err)
	}
	return v, nil
}
