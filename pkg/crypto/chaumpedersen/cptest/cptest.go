// Package cptest provides deterministic challengers for tests.
//
// Importing this package is the only way to make the protocol issue
// predictable challenges; production wiring never references it.
package cptest

import (
	"fmt"
	"math/big"
	"sync"
)

// FixedChallenger always returns the same challenge.
type FixedChallenger struct {
	C *big.Int
}

// Fixed returns a challenger that always answers c.
func Fixed(c int64) *FixedChallenger {
	return &FixedChallenger{C: big.NewInt(c)}
}

// Challenge implements chaumpedersen.Challenger.
func (f *FixedChallenger) Challenge(bound *big.Int) (*big.Int, error) {
	if f.C.Cmp(bound) >= 0 {
		return nil, fmt.Errorf("fixed challenge %s exceeds bound %s", f.C, bound)
	}
	return new(big.Int).Set(f.C), nil
}

// SequenceChallenger returns its values in order, cycling when exhausted.
type SequenceChallenger struct {
	mu     sync.Mutex
	values []*big.Int
	next   int
}

// Sequence returns a challenger that answers the given values in turn.
func Sequence(values ...int64) *SequenceChallenger {
	s := &SequenceChallenger{}
	for _, v := range values {
		s.values = append(s.values, big.NewInt(v))
	}
	return s
}

// Challenge implements chaumpedersen.Challenger.
func (s *SequenceChallenger) Challenge(bound *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.values) == 0 {
		return nil, fmt.Errorf("empty challenge sequence")
	}

	c := s.values[s.next%len(s.values)]
	s.next++

	if c.Cmp(bound) >= 0 {
		return nil, fmt.Errorf("sequenced challenge %s exceeds bound %s", c, bound)
	}
	return new(big.Int).Set(c), nil
}
