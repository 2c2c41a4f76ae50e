// Package auth sequences Chaum-Pedersen registration, challenge issuance and
// verification against per-identity credential and challenge records.
//
// Each identity moves through a small state machine:
//
//	Unregistered --Register--> Registered --IssueChallenge--> ChallengeIssued
//	ChallengeIssued --IssueChallenge--> ChallengeIssued   (latest wins)
//	ChallengeIssued --Verify--> Registered                (challenge consumed)
//
// Every operation runs its read, compute and write steps inside a critical
// section for the identity, so operations on one identity are totally
// ordered while different identities proceed in parallel.
package auth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/allsmog/zkcp-go/pkg/crypto/chaumpedersen"
	"github.com/allsmog/zkcp-go/pkg/storage"
)

// MaxIdentityLength bounds identities in bytes
const MaxIdentityLength = 256

// DefaultChallengeTTL is used when Config.ChallengeTTL is zero
const DefaultChallengeTTL = 2 * time.Minute

// Config contains configuration for the authentication service
type Config struct {
	ChallengeTTL time.Duration    // Lifetime of an issued challenge
	Sessions     SessionIssuer    // Mints session tokens; UUIDs when nil
	Now          func() time.Time // Clock; time.Now when nil
}

// Service implements register, issue-challenge and verify
type Service struct {
	zkp         *chaumpedersen.Protocol
	credentials storage.CredentialStore
	challenges  storage.ChallengeStore
	locks       *lockTable
	config      Config
}

// Stats reports record counts
type Stats struct {
	Credentials int `json:"credentials"`
	Challenges  int `json:"challenges"`
}

// NewService creates a new authentication service
func NewService(
	zkp *chaumpedersen.Protocol,
	credentials storage.CredentialStore,
	challenges storage.ChallengeStore,
	config Config,
) *Service {
	if config.ChallengeTTL <= 0 {
		config.ChallengeTTL = DefaultChallengeTTL
	}
	if config.Sessions == nil {
		config.Sessions = UUIDSessionIssuer{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Service{
		zkp:         zkp,
		credentials: credentials,
		challenges:  challenges,
		locks:       newLockTable(),
		config:      config,
	}
}

// Protocol returns the engine the service verifies with
func (s *Service) Protocol() *chaumpedersen.Protocol {
	return s.zkp
}

// Register stores the credential (v1, v2) for identity. It fails with
// ErrIdentityAlreadyRegistered if the identity already has one, leaving the
// existing credential untouched.
func (s *Service) Register(ctx context.Context, identity string, v1, v2 *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateIdentity(identity); err != nil {
		return err
	}
	if err := s.zkp.CheckElement("v1", v1); err != nil {
		return err
	}
	if err := s.zkp.CheckElement("v2", v2); err != nil {
		return err
	}

	unlock := s.locks.lock(identity)
	defer unlock()

	cred := storage.Credential{
		Identity:     identity,
		V1:           v1,
		V2:           v2,
		RegisteredAt: s.config.Now(),
	}

	if err := s.credentials.Insert(identity, cred); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return ErrIdentityAlreadyRegistered
		}
		return fmt.Errorf("failed to store credential: %w", err)
	}

	return nil
}

// IssueChallenge records the commitment (r1, r2) for identity and returns a
// fresh challenge. Any challenge already outstanding for the identity is
// discarded. The challenge ID is the identity itself.
func (s *Service) IssueChallenge(ctx context.Context, identity string, r1, r2 *big.Int) (string, *big.Int, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if err := validateIdentity(identity); err != nil {
		return "", nil, err
	}
	if err := s.zkp.CheckElement("r1", r1); err != nil {
		return "", nil, err
	}
	if err := s.zkp.CheckElement("r2", r2); err != nil {
		return "", nil, err
	}

	unlock := s.locks.lock(identity)
	defer unlock()

	registered, err := s.credentials.Exists(identity)
	if err != nil {
		return "", nil, fmt.Errorf("failed to look up credential: %w", err)
	}
	if !registered {
		return "", nil, ErrIdentityNotFound
	}

	c, err := s.zkp.GenerateChallenge()
	if err != nil {
		return "", nil, err
	}

	challenge := storage.Challenge{
		Identity: identity,
		R1:       r1,
		R2:       r2,
		C:        c,
		IssuedAt: s.config.Now(),
	}

	if _, _, err := s.challenges.Put(identity, challenge); err != nil {
		return "", nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	return identity, c, nil
}

// Verify checks the response s against the challenge outstanding for
// challengeID and returns a session token on success. The challenge is
// consumed by every attempt, successful or not, so a response can never be
// replayed and a failed attempt requires a new challenge.
func (s *Service) Verify(ctx context.Context, challengeID string, resp *big.Int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateIdentity(challengeID); err != nil {
		return "", err
	}
	if err := s.zkp.CheckExponent("response", resp); err != nil {
		return "", err
	}

	unlock := s.locks.lock(challengeID)
	defer unlock()

	cred, err := s.credentials.Get(challengeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrIdentityNotFound
		}
		return "", fmt.Errorf("failed to look up credential: %w", err)
	}

	challenge, err := s.challenges.Delete(challengeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrChallengeNotFound
		}
		return "", fmt.Errorf("failed to consume challenge: %w", err)
	}

	if s.expired(challenge, s.config.Now()) {
		return "", ErrChallengeNotFound
	}

	ok, err := s.zkp.Verify(cred.V1, cred.V2, challenge.R1, challenge.R2, challenge.C, resp)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrVerificationFailed
	}

	token, err := s.config.Sessions.Issue(challengeID)
	if err != nil {
		return "", err
	}

	return token, nil
}

// Stats returns the number of stored credentials and challenges. Stores that
// cannot report a size count as zero.
func (s *Service) Stats() Stats {
	return Stats{
		Credentials: storeLen(s.credentials),
		Challenges:  storeLen(s.challenges),
	}
}

// PruneExpired drops every challenge that has outlived its TTL at now and
// reports how many were removed
func (s *Service) PruneExpired(now time.Time) int {
	pruner, ok := s.challenges.(interface {
		DeleteFunc(func(string, storage.Challenge) bool) int
	})
	if !ok {
		return 0
	}

	return pruner.DeleteFunc(func(_ string, c storage.Challenge) bool {
		return s.expired(c, now)
	})
}

// RunJanitor prunes expired challenges every interval until ctx is done
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = s.config.ChallengeTTL
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.PruneExpired(s.config.Now())
		}
	}
}

func (s *Service) expired(c storage.Challenge, now time.Time) bool {
	return now.Sub(c.IssuedAt) > s.config.ChallengeTTL
}

func validateIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidIdentity)
	}
	if len(identity) > MaxIdentityLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidIdentity, MaxIdentityLength)
	}
	return nil
}

func storeLen(store any) int {
	if l, ok := store.(interface{ Len() int }); ok {
		return l.Len()
	}
	return 0
}
