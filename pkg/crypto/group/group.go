// Package group defines the public parameters of the multiplicative group
// used by the Chaum-Pedersen protocol.
//
// # Group Basics
//
// The protocol works in the multiplicative group of integers modulo a prime
// p. A group description consists of:
//   - The modulus p (every group element is reduced mod p)
//   - Two generators G and H whose mutual discrete logarithm is unknown
//   - The order of the exponent group, used to reduce responses
//
// Exponents live modulo the order, not modulo p. For a prime modulus the
// full group Z_p* has order p-1 (Fermat), so p-1 is the default. Groups that
// work in a prime-order subgroup (such as the RFC 3526 safe-prime groups,
// where p = 2q+1) supply q explicitly.
//
// # Security Properties
//
// Security rests on the hardness of the discrete logarithm in the chosen
// group. The "toy" preset exists for test vectors and demos; it offers no
// security at all.
package group

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// DomainGenerator is the domain separator used to derive the second
// generator of the modp2048 preset.
const DomainGenerator = "zkcp/1/h"

var (
	// ErrInvalidParams indicates a parameter set that cannot define a group
	ErrInvalidParams = errors.New("invalid group parameters")

	// ErrUnknownPreset indicates an unsupported preset name
	ErrUnknownPreset = errors.New("unknown group preset")
)

// Params is an immutable description of the protocol group.
// All accessors return copies, so callers cannot mutate shared state.
type Params struct {
	name    string
	g       *big.Int
	h       *big.Int
	modulus *big.Int
	order   *big.Int
}

// New validates and builds a parameter set. A nil order defaults to
// modulus-1.
func New(name string, g, h, modulus, order *big.Int) (*Params, error) {
	if g == nil || h == nil || modulus == nil {
		return nil, fmt.Errorf("%w: g, h and modulus are required", ErrInvalidParams)
	}

	two := big.NewInt(2)
	if modulus.Cmp(two) <= 0 || modulus.Bit(0) == 0 {
		return nil, fmt.Errorf("%w: modulus must be an odd integer greater than 2", ErrInvalidParams)
	}

	if g.Cmp(big.NewInt(1)) <= 0 || g.Cmp(modulus) >= 0 {
		return nil, fmt.Errorf("%w: g must lie in (1, modulus)", ErrInvalidParams)
	}
	if h.Cmp(big.NewInt(1)) <= 0 || h.Cmp(modulus) >= 0 {
		return nil, fmt.Errorf("%w: h must lie in (1, modulus)", ErrInvalidParams)
	}

	if g.Cmp(h) == 0 {
		return nil, fmt.Errorf("%w: g and h must be distinct", ErrInvalidParams)
	}

	if order == nil {
		order = new(big.Int).Sub(modulus, big.NewInt(1))
	} else if order.Cmp(big.NewInt(1)) <= 0 || order.Cmp(modulus) >= 0 {
		return nil, fmt.Errorf("%w: order must lie in (1, modulus)", ErrInvalidParams)
	}

	if name == "" {
		name = "custom"
	}

	return &Params{
		name:    name,
		g:       new(big.Int).Set(g),
		h:       new(big.Int).Set(h),
		modulus: new(big.Int).Set(modulus),
		order:   new(big.Int).Set(order),
	}, nil
}

// Name returns the preset name, or "custom".
func (p *Params) Name() string { return p.name }

// G returns the first generator.
func (p *Params) G() *big.Int { return new(big.Int).Set(p.g) }

// H returns the second generator.
func (p *Params) H() *big.Int { return new(big.Int).Set(p.h) }

// Modulus returns the group modulus p.
func (p *Params) Modulus() *big.Int { return new(big.Int).Set(p.modulus) }

// Order returns the order used for exponent arithmetic.
func (p *Params) Order() *big.Int { return new(big.Int).Set(p.order) }

// String implements fmt.Stringer.
func (p *Params) String() string {
	return fmt.Sprintf("%s(g=%s, h=%s, |p|=%d bits)", p.name, abbrev(p.g), abbrev(p.h), p.modulus.BitLen())
}

// FromStrings parses decimal or 0x-prefixed hexadecimal values. An empty
// order selects the default.
func FromStrings(name, g, h, modulus, order string) (*Params, error) {
	gi, err := ParseInt(g)
	if err != nil {
		return nil, fmt.Errorf("%w: g: %v", ErrInvalidParams, err)
	}
	hi, err := ParseInt(h)
	if err != nil {
		return nil, fmt.Errorf("%w: h: %v", ErrInvalidParams, err)
	}
	mi, err := ParseInt(modulus)
	if err != nil {
		return nil, fmt.Errorf("%w: modulus: %v", ErrInvalidParams, err)
	}

	var oi *big.Int
	if strings.TrimSpace(order) != "" {
		oi, err = ParseInt(order)
		if err != nil {
			return nil, fmt.Errorf("%w: order: %v", ErrInvalidParams, err)
		}
	}

	return New(name, gi, hi, mi, oi)
}

// ParseInt parses a decimal or 0x-prefixed hexadecimal integer.
func ParseInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	if s == "" {
		return nil, errors.New("empty integer")
	}

	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("malformed integer %q", s)
	}
	return v, nil
}

// Preset returns a named parameter set.
func Preset(name string) (*Params, error) {
	switch strings.ToLower(name) {
	case "modp2048":
		return ModP2048(), nil
	case "toy":
		return Toy(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
}

// Presets lists the names understood by Preset.
func Presets() []string {
	return []string{"modp2048", "toy"}
}

// rfc3526Group14 is the 2048-bit MODP safe prime from RFC 3526, section 3.
const rfc3526Group14 = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AACAA68FFFFFFFFFFFFFFFF"

// ModP2048 returns the RFC 3526 group 14 parameters restricted to the
// prime-order subgroup of quadratic residues.
//
// p = 2q+1 with p ≡ 7 (mod 8), so 2 is a quadratic residue and generates the
// subgroup of order q. H is derived by hashing a fixed domain string and
// squaring the result, which lands it in the same subgroup with no known
// relation to G.
func ModP2048() *Params {
	p, _ := new(big.Int).SetString(rfc3526Group14, 16)
	q := new(big.Int).Rsh(p, 1)

	params, err := New("modp2048", big.NewInt(2), deriveGenerator(p, DomainGenerator), p, q)
	if err != nil {
		panic(fmt.Sprintf("group: modp2048 preset is invalid: %v", err))
	}
	return params
}

// Toy returns the tiny test-vector group g=3, h=5, p=10009.
func Toy() *Params {
	params, err := New("toy", big.NewInt(3), big.NewInt(5), big.NewInt(10009), nil)
	if err != nil {
		panic(fmt.Sprintf("group: toy preset is invalid: %v", err))
	}
	return params
}

// deriveGenerator maps a seed into the quadratic residues modulo p.
// The SHAKE256 output carries 256 extra bits so the reduction mod p is
// statistically close to uniform.
func deriveGenerator(p *big.Int, seed string) *big.Int {
	out := make([]byte, (p.BitLen()+256+7)/8)
	sha3.ShakeSum256(out, []byte(seed))

	t := new(big.Int).SetBytes(out)
	t.Mod(t, p)
	return t.Exp(t, big.NewInt(2), p)
}

func abbrev(v *big.Int) string {
	s := v.String()
	if len(s) > 12 {
		return s[:6] + "…" + s[len(s)-4:]
	}
	return s
}
