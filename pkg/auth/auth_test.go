package auth

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/allsmog/zkcp-go/pkg/crypto/chaumpedersen"
	"github.com/allsmog/zkcp-go/pkg/crypto/chaumpedersen/cptest"
	"github.com/allsmog/zkcp-go/pkg/crypto/group"
	"github.com/allsmog/zkcp-go/pkg/storage"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixedIssuer string

func (f fixedIssuer) Issue(string) (string, error) { return string(f), nil }

func setupTestService(t *testing.T, challenger chaumpedersen.Challenger) (*Service, *testClock) {
	t.Helper()

	clock := &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	zkp := chaumpedersen.New(group.Toy(), chaumpedersen.WithChallenger(challenger))

	svc := NewService(
		zkp,
		storage.NewMemoryStore[storage.Credential](),
		storage.NewMemoryStore[storage.Challenge](),
		Config{
			ChallengeTTL: time.Minute,
			Now:          clock.Now,
		},
	)
	return svc, clock
}

func TestService_KnownScenario(t *testing.T) {
	svc, _ := setupTestService(t, cptest.Fixed(1000))
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", big.NewInt(9674), big.NewInt(1370)); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	id, c, err := svc.IssueChallenge(ctx, "alice", big.NewInt(8438), big.NewInt(864))
	if err != nil {
		t.Fatalf("failed to issue challenge: %v", err)
	}
	if id != "alice" {
		t.Errorf("expected challenge id alice, got %s", id)
	}
	if c.Int64() != 1000 {
		t.Errorf("expected c = 1000, got %s", c)
	}

	token, err := svc.Verify(ctx, id, big.NewInt(1035))
	if err != nil {
		t.Fatalf("valid response rejected: %v", err)
	}
	if token == "" {
		t.Error("session token should not be empty")
	}

	t.Run("ChallengeConsumed", func(t *testing.T) {
		_, err := svc.Verify(ctx, id, big.NewInt(1035))
		if !errors.Is(err, ErrChallengeNotFound) {
			t.Errorf("expected ErrChallengeNotFound on replay, got %v", err)
		}
	})

	t.Run("WrongResponse", func(t *testing.T) {
		if _, _, err := svc.IssueChallenge(ctx, "alice", big.NewInt(8438), big.NewInt(864)); err != nil {
			t.Fatalf("failed to issue challenge: %v", err)
		}

		_, err := svc.Verify(ctx, "alice", big.NewInt(1036))
		if !errors.Is(err, ErrVerificationFailed) {
			t.Fatalf("expected ErrVerificationFailed, got %v", err)
		}

		// The failed attempt consumed the challenge, so even the right
		// answer now needs a new one.
		_, err = svc.Verify(ctx, "alice", big.NewInt(1035))
		if !errors.Is(err, ErrChallengeNotFound) {
			t.Errorf("expected ErrChallengeNotFound after failed attempt, got %v", err)
		}
	})
}

func TestService_Register(t *testing.T) {
	svc, _ := setupTestService(t, cptest.Fixed(1000))
	ctx := context.Background()

	t.Run("AtMostOnce", func(t *testing.T) {
		if err := svc.Register(ctx, "bob", big.NewInt(10), big.NewInt(20)); err != nil {
			t.Fatalf("failed to register: %v", err)
		}

		err := svc.Register(ctx, "bob", big.NewInt(30), big.NewInt(40))
		if !errors.Is(err, ErrIdentityAlreadyRegistered) {
			t.Fatalf("expected ErrIdentityAlreadyRegistered, got %v", err)
		}

		cred, err := svc.credentials.Get("bob")
		if err != nil {
			t.Fatalf("failed to read credential: %v", err)
		}
		if cred.V1.Int64() != 10 || cred.V2.Int64() != 20 {
			t.Errorf("original credential changed: (%s, %s)", cred.V1, cred.V2)
		}
	})

	t.Run("InvalidOperands", func(t *testing.T) {
		cases := []struct {
			name   string
			v1, v2 *big.Int
		}{
			{"NegativeV1", big.NewInt(-1), big.NewInt(2)},
			{"NegativeV2", big.NewInt(2), big.NewInt(-5)},
			{"Zero", big.NewInt(0), big.NewInt(2)},
			{"TooLarge", big.NewInt(10009), big.NewInt(2)},
			{"Missing", nil, big.NewInt(2)},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				err := svc.Register(ctx, "carol-"+tc.name, tc.v1, tc.v2)
				if !errors.Is(err, chaumpedersen.ErrMath) {
					t.Errorf("expected ErrMath, got %v", err)
				}
				if ok, _ := svc.credentials.Exists("carol-" + tc.name); ok {
					t.Error("invalid credential must not be stored")
				}
			})
		}
	})

	t.Run("InvalidIdentity", func(t *testing.T) {
		if err := svc.Register(ctx, "", big.NewInt(2), big.NewInt(3)); !errors.Is(err, ErrInvalidIdentity) {
			t.Errorf("expected ErrInvalidIdentity for empty identity, got %v", err)
		}

		long := strings.Repeat("x", MaxIdentityLength+1)
		if err := svc.Register(ctx, long, big.NewInt(2), big.NewInt(3)); !errors.Is(err, ErrInvalidIdentity) {
			t.Errorf("expected ErrInvalidIdentity for long identity, got %v", err)
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		if err := svc.Register(cctx, "dave", big.NewInt(2), big.NewInt(3)); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestService_Preconditions(t *testing.T) {
	svc, _ := setupTestService(t, cptest.Fixed(1000))
	ctx := context.Background()

	t.Run("ChallengeForUnknownIdentity", func(t *testing.T) {
		_, _, err := svc.IssueChallenge(ctx, "nobody", big.NewInt(2), big.NewInt(3))
		if !errors.Is(err, ErrIdentityNotFound) {
			t.Errorf("expected ErrIdentityNotFound, got %v", err)
		}
		if svc.Stats().Challenges != 0 {
			t.Error("no challenge should be stored for an unknown identity")
		}
	})

	t.Run("VerifyUnknownIdentity", func(t *testing.T) {
		_, err := svc.Verify(ctx, "nobody", big.NewInt(1))
		if !errors.Is(err, ErrIdentityNotFound) {
			t.Errorf("expected ErrIdentityNotFound, got %v", err)
		}
	})

	t.Run("VerifyWithoutChallenge", func(t *testing.T) {
		if err := svc.Register(ctx, "erin", big.NewInt(2), big.NewInt(3)); err != nil {
			t.Fatalf("failed to register: %v", err)
		}

		_, err := svc.Verify(ctx, "erin", big.NewInt(1))
		if !errors.Is(err, ErrChallengeNotFound) {
			t.Errorf("expected ErrChallengeNotFound, got %v", err)
		}
	})

	t.Run("NegativeResponse", func(t *testing.T) {
		if _, _, err := svc.IssueChallenge(ctx, "erin", big.NewInt(2), big.NewInt(3)); err != nil {
			t.Fatalf("failed to issue challenge: %v", err)
		}

		_, err := svc.Verify(ctx, "erin", big.NewInt(-1))
		if !errors.Is(err, chaumpedersen.ErrMath) {
			t.Errorf("expected ErrMath, got %v", err)
		}

		// Rejected before any state change
		if ok, _ := svc.challenges.Exists("erin"); !ok {
			t.Error("challenge should survive a malformed response")
		}
	})

	t.Run("NegativeCommitment", func(t *testing.T) {
		_, _, err := svc.IssueChallenge(ctx, "erin", big.NewInt(-2), big.NewInt(3))
		if !errors.Is(err, chaumpedersen.ErrMath) {
			t.Errorf("expected ErrMath, got %v", err)
		}
	})
}

func TestService_LatestChallengeWins(t *testing.T) {
	svc, _ := setupTestService(t, cptest.Sequence(1000, 2000))
	ctx := context.Background()

	zkp := svc.Protocol()
	x := big.NewInt(9)
	v1, v2, _ := zkp.DeriveCredential(x)
	if err := svc.Register(ctx, "alice", v1, v2); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	k1 := big.NewInt(27)
	r1a, r2a, _ := zkp.DeriveCommitment(k1)
	_, c1, err := svc.IssueChallenge(ctx, "alice", r1a, r2a)
	if err != nil {
		t.Fatalf("failed to issue first challenge: %v", err)
	}

	k2 := big.NewInt(55)
	r1b, r2b, _ := zkp.DeriveCommitment(k2)
	_, c2, err := svc.IssueChallenge(ctx, "alice", r1b, r2b)
	if err != nil {
		t.Fatalf("failed to issue second challenge: %v", err)
	}

	if c1.Int64() != 1000 || c2.Int64() != 2000 {
		t.Fatalf("unexpected challenge sequence: %s, %s", c1, c2)
	}
	if svc.Stats().Challenges != 1 {
		t.Errorf("expected exactly one outstanding challenge, got %d", svc.Stats().Challenges)
	}

	t.Run("StaleResponseFails", func(t *testing.T) {
		stale, _ := zkp.ComputeResponse(k1, c1, x)
		_, err := svc.Verify(ctx, "alice", stale)
		if !errors.Is(err, ErrVerificationFailed) {
			t.Errorf("response to superseded challenge should fail, got %v", err)
		}
	})

	t.Run("LatestResponseSucceeds", func(t *testing.T) {
		if _, _, err := svc.IssueChallenge(ctx, "alice", r1b, r2b); err != nil {
			t.Fatalf("failed to reissue challenge: %v", err)
		}
		// The sequence cycles back to 1000 for the reissue
		s, _ := zkp.ComputeResponse(k2, c1, x)
		if _, err := svc.Verify(ctx, "alice", s); err != nil {
			t.Errorf("response to latest challenge rejected: %v", err)
		}
	})
}

func TestService_ChallengeExpiry(t *testing.T) {
	svc, clock := setupTestService(t, cptest.Fixed(1000))
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", big.NewInt(9674), big.NewInt(1370)); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	t.Run("ExpiredChallenge", func(t *testing.T) {
		if _, _, err := svc.IssueChallenge(ctx, "alice", big.NewInt(8438), big.NewInt(864)); err != nil {
			t.Fatalf("failed to issue challenge: %v", err)
		}

		clock.Advance(time.Minute + time.Second)

		_, err := svc.Verify(ctx, "alice", big.NewInt(1035))
		if !errors.Is(err, ErrChallengeNotFound) {
			t.Errorf("expected ErrChallengeNotFound for expired challenge, got %v", err)
		}
	})

	t.Run("PruneExpired", func(t *testing.T) {
		if _, _, err := svc.IssueChallenge(ctx, "alice", big.NewInt(8438), big.NewInt(864)); err != nil {
			t.Fatalf("failed to issue challenge: %v", err)
		}

		if n := svc.PruneExpired(clock.Now()); n != 0 {
			t.Errorf("fresh challenge should not be pruned, removed %d", n)
		}

		if n := svc.PruneExpired(clock.Now().Add(2 * time.Minute)); n != 1 {
			t.Errorf("expected 1 pruned challenge, got %d", n)
		}

		if svc.Stats().Challenges != 0 {
			t.Errorf("expected no challenges left, got %d", svc.Stats().Challenges)
		}
	})

	t.Run("Janitor", func(t *testing.T) {
		if _, _, err := svc.IssueChallenge(ctx, "alice", big.NewInt(8438), big.NewInt(864)); err != nil {
			t.Fatalf("failed to issue challenge: %v", err)
		}
		clock.Advance(2 * time.Minute)

		jctx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- svc.RunJanitor(jctx, 5*time.Millisecond) }()

		deadline := time.Now().Add(2 * time.Second)
		for svc.Stats().Challenges != 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()

		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("expected janitor to stop with context.Canceled, got %v", err)
		}
		if svc.Stats().Challenges != 0 {
			t.Error("janitor should prune the expired challenge")
		}
	})
}

func TestService_SessionIssuer(t *testing.T) {
	zkp := chaumpedersen.New(group.Toy(), chaumpedersen.WithChallenger(cptest.Fixed(1000)))
	svc := NewService(
		zkp,
		storage.NewMemoryStore[storage.Credential](),
		storage.NewMemoryStore[storage.Challenge](),
		Config{Sessions: fixedIssuer("session-123")},
	)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", big.NewInt(9674), big.NewInt(1370)); err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	if _, _, err := svc.IssueChallenge(ctx, "alice", big.NewInt(8438), big.NewInt(864)); err != nil {
		t.Fatalf("failed to issue challenge: %v", err)
	}

	token, err := svc.Verify(ctx, "alice", big.NewInt(1035))
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if token != "session-123" {
		t.Errorf("expected token from configured issuer, got %s", token)
	}
}

func TestUUIDSessionIssuer(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := UUIDSessionIssuer{}.Issue("alice")
		if err != nil {
			t.Fatalf("failed to issue token: %v", err)
		}
		if len(token) != 36 {
			t.Errorf("expected canonical UUID, got %q", token)
		}
		if seen[token] {
			t.Fatalf("duplicate token %s", token)
		}
		seen[token] = true
	}
}
