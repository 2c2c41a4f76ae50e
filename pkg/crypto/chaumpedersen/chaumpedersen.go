// Package chaumpedersen implements the Chaum-Pedersen identification protocol
// for proving knowledge of a discrete logarithm shared by two public values.
//
// # Chaum-Pedersen Protocol Overview
//
// The prover knows a secret exponent x and has registered the credential
// (v1, v2) = (G^x, H^x) mod p. To authenticate, it convinces the verifier
// that log_G(v1) == log_H(v2) == x without revealing x.
//
//  1. COMMITMENT (Prover → Verifier):
//     - Prover draws a fresh ephemeral secret k
//     - Prover sends (r1, r2) = (G^k, H^k) mod p
//
//  2. CHALLENGE (Verifier → Prover):
//     - Verifier draws c uniformly from [0, p)
//
//  3. RESPONSE (Prover → Verifier):
//     - Prover sends s = (k - c*x) mod Order
//
//  4. VERIFICATION:
//     - Verifier checks G^s * v1^c == r1 and H^s * v2^c == r2 (mod p)
//
// # Why This Works
//
//	G^s * v1^c = G^(k - c*x) * G^(x*c)   // substituting s and v1
//	           = G^k                     // exponents cancel modulo Order
//	           = r1
//
// The exponent identity only holds modulo the order of the group generated by
// G, which is why the response is reduced modulo Order and not modulo p.
//
// # Numeric Contract
//
// Every exponentiation and multiplication is reduced modulo p at each step
// using constant-time arithmetic from safenum, so neither overflow nor the
// bit pattern of a secret exponent leaks through timing. Operands that
// cannot be evaluated (negative values, elements outside [1, p), exponents
// of p or more) are rejected with errors wrapping ErrMath.
//
// # Security Properties
//
//   - COMPLETENESS: an honest prover always passes
//   - SOUNDNESS: a prover without x passes with probability about 1/Order
//   - ZERO-KNOWLEDGE: k masks x in s, provided k is never reused
package chaumpedersen

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/allsmog/zkcp-go/pkg/crypto/group"
	"github.com/cronokirby/safenum"
)

var (
	// ErrMath indicates the arithmetic could not be carried out safely
	ErrMath = errors.New("zkp math error")

	// ErrOperand indicates an operand outside the range the protocol accepts
	ErrOperand = fmt.Errorf("%w: operand out of range", ErrMath)
)

// Protocol evaluates the Chaum-Pedersen steps over a fixed group.
// A Protocol is immutable and safe for concurrent use as long as its
// Challenger is.
type Protocol struct {
	params     *group.Params
	challenger Challenger

	// cached safenum forms of the public parameters
	modulus *safenum.Modulus
	order   *safenum.Modulus
	g       *safenum.Nat
	h       *safenum.Nat
	bits    int
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithChallenger replaces the default crypto/rand challenger.
func WithChallenger(c Challenger) Option {
	return func(p *Protocol) {
		if c != nil {
			p.challenger = c
		}
	}
}

// New creates a Protocol over params.
func New(params *group.Params, opts ...Option) *Protocol {
	mod := params.Modulus()

	p := &Protocol{
		params:     params,
		challenger: NewSecureChallenger(),
		modulus:    safenum.ModulusFromBytes(mod.Bytes()),
		order:      safenum.ModulusFromBytes(params.Order().Bytes()),
		bits:       mod.BitLen(),
	}
	p.g = p.nat(params.G())
	p.h = p.nat(params.H())

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Params returns the group the protocol operates in.
func (p *Protocol) Params() *group.Params {
	return p.params
}

// DeriveCredential computes the registration values v1 = G^x, v2 = H^x.
func (p *Protocol) DeriveCredential(secret *big.Int) (v1, v2 *big.Int, err error) {
	if err := checkNonNegative("secret", secret); err != nil {
		return nil, nil, err
	}
	return p.pair(secret)
}

// DeriveCommitment computes the login commitment r1 = G^k, r2 = H^k.
//
// The ephemeral secret k MUST be fresh for every login attempt. Reusing k
// with two different challenges c1, c2 reveals the secret:
//
//	x = (s2 - s1) / (c1 - c2) mod Order
//
// The engine cannot enforce this; the prover package does.
func (p *Protocol) DeriveCommitment(ephemeral *big.Int) (r1, r2 *big.Int, err error) {
	if err := checkNonNegative("ephemeral secret", ephemeral); err != nil {
		return nil, nil, err
	}
	return p.pair(ephemeral)
}

// GenerateChallenge draws the challenge scalar c from [0, p).
func (p *Protocol) GenerateChallenge() (*big.Int, error) {
	c, err := p.challenger.Challenge(p.params.Modulus())
	if err != nil {
		return nil, fmt.Errorf("failed to generate challenge: %w", err)
	}
	if c == nil || c.Sign() < 0 || c.Cmp(p.params.Modulus()) >= 0 {
		return nil, fmt.Errorf("%w: challenger returned a value outside [0, p)", ErrMath)
	}
	return c, nil
}

// ComputeResponse computes s = (k - c*x) mod Order, normalized into
// [0, Order).
func (p *Protocol) ComputeResponse(ephemeral, c, secret *big.Int) (*big.Int, error) {
	if err := checkNonNegative("ephemeral secret", ephemeral); err != nil {
		return nil, err
	}
	if err := checkNonNegative("challenge", c); err != nil {
		return nil, err
	}
	if err := checkNonNegative("secret", secret); err != nil {
		return nil, err
	}

	k := new(safenum.Nat).Mod(p.nat(ephemeral), p.order)
	cr := new(safenum.Nat).Mod(p.nat(c), p.order)
	xr := new(safenum.Nat).Mod(p.nat(secret), p.order)

	cx := new(safenum.Nat).ModMul(cr, xr, p.order)
	s := new(safenum.Nat).ModSub(k, cx, p.order)

	return s.Big(), nil
}

// Verify checks both verification equations. Operands that are not valid
// group elements or exponents yield an error wrapping ErrOperand rather than
// false.
func (p *Protocol) Verify(v1, v2, r1, r2, c, s *big.Int) (bool, error) {
	for _, e := range []struct {
		name string
		v    *big.Int
	}{{"v1", v1}, {"v2", v2}, {"r1", r1}, {"r2", r2}} {
		if err := p.CheckElement(e.name, e.v); err != nil {
			return false, err
		}
	}
	if err := p.CheckExponent("challenge", c); err != nil {
		return false, err
	}
	if err := p.CheckExponent("response", s); err != nil {
		return false, err
	}

	cn := p.nat(c)
	sn := p.nat(s)

	// G^s * v1^c
	left1 := new(safenum.Nat).Exp(p.g, sn, p.modulus)
	right1 := new(safenum.Nat).Exp(p.nat(v1), cn, p.modulus)
	t1 := new(safenum.Nat).ModMul(left1, right1, p.modulus)

	// H^s * v2^c
	left2 := new(safenum.Nat).Exp(p.h, sn, p.modulus)
	right2 := new(safenum.Nat).Exp(p.nat(v2), cn, p.modulus)
	t2 := new(safenum.Nat).ModMul(left2, right2, p.modulus)

	ok1 := t1.Eq(p.nat(r1))
	ok2 := t2.Eq(p.nat(r2))

	return ok1&ok2 == 1, nil
}

// CheckElement reports whether v is a group element in [1, p).
func (p *Protocol) CheckElement(name string, v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: %s is missing", ErrOperand, name)
	}
	if v.Sign() <= 0 || v.Cmp(p.params.Modulus()) >= 0 {
		return fmt.Errorf("%w: %s must lie in [1, p)", ErrOperand, name)
	}
	return nil
}

// CheckExponent reports whether v is an exponent in [0, p).
func (p *Protocol) CheckExponent(name string, v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: %s is missing", ErrOperand, name)
	}
	if v.Sign() < 0 || v.Cmp(p.params.Modulus()) >= 0 {
		return fmt.Errorf("%w: %s must lie in [0, p)", ErrOperand, name)
	}
	return nil
}

// pair computes (G^e, H^e) mod p.
func (p *Protocol) pair(e *big.Int) (*big.Int, *big.Int, error) {
	en := p.nat(e)
	a := new(safenum.Nat).Exp(p.g, en, p.modulus)
	b := new(safenum.Nat).Exp(p.h, en, p.modulus)
	return a.Big(), b.Big(), nil
}

// nat converts a non-negative big.Int into a Nat announced at no fewer bits
// than the modulus, so operand sizes do not leak through timing.
func (p *Protocol) nat(v *big.Int) *safenum.Nat {
	size := p.bits
	if v.BitLen() > size {
		size = v.BitLen()
	}
	return new(safenum.Nat).SetBig(v, size)
}

func checkNonNegative(name string, v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: %s is missing", ErrOperand, name)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrOperand, name)
	}
	return nil
}
