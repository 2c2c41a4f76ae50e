package auth

import (
	"fmt"
	"hash/maphash"
	"sync"

	"github.com/google/uuid"
)

// SessionIssuer mints the opaque token returned after a successful
// verification
type SessionIssuer interface {
	Issue(identity string) (string, error)
}

// UUIDSessionIssuer returns random version 4 UUIDs
type UUIDSessionIssuer struct{}

// Issue implements SessionIssuer
func (UUIDSessionIssuer) Issue(string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return id.String(), nil
}

const lockStripes = 256

// lockTable serializes operations per identity. Identities hash onto a fixed
// set of mutexes, so unrelated identities rarely contend.
type lockTable struct {
	seed    maphash.Seed
	stripes [lockStripes]sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{seed: maphash.MakeSeed()}
}

// lock acquires the stripe for identity and returns its unlock function
func (l *lockTable) lock(identity string) func() {
	m := &l.stripes[maphash.String(l.seed, identity)%lockStripes]
	m.Lock()
	return m.Unlock
}
