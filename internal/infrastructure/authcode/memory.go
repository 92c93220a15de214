package authcode

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lukekeith/makeready/internal/domain/entities"
	"github.com/lukekeith/makeready/internal/domain/repositories"
)

const codeBytes = 32

// defaultSweepInterval bounds how long an unredeemed expired entry can
// linger before the janitor removes it.
const defaultSweepInterval = time.Minute

// MemoryStore is an in-process AuthCodeStore. Redemption holds the lock
// across the lookup and the delete, so a code can be delivered at most once
// no matter how many exchange requests race for it.
type MemoryStore struct {
	mu    sync.Mutex
	codes map[string]entities.AuthCode

	now       func() time.Time
	log       *slog.Logger
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ repositories.AuthCodeStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store with a background sweep for entries that
// expire without ever being redeemed.
func NewMemoryStore() *MemoryStore {
	s := newMemoryStore(time.Now)
	go s.sweepLoop(defaultSweepInterval)
	return s
}

// NewMemoryStoreWithClock creates a store without a janitor, using the given
// clock. Expired entries are still rejected and removed on access.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	s := newMemoryStore(now)
	close(s.done)
	return s
}

func newMemoryStore(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		codes: make(map[string]entities.AuthCode),
		now:   now,
		log:   slog.Default().With(slog.String("component", "authcode-memory")),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Issue generates a fresh opaque code bound to the session
func (s *MemoryStore) Issue(ctx context.Context, sessionID, userID string, ttl time.Duration) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate auth code: %w", err)
	}

	entry := entities.AuthCode{
		Code:      code,
		SessionID: sessionID,
		UserID:    userID,
		ExpiresAt: s.now().Add(ttl),
	}

	s.mu.Lock()
	s.codes[code] = entry
	s.mu.Unlock()

	s.log.Debug("issued auth code",
		slog.String("user_id", userID),
		slog.Time("expires_at", entry.ExpiresAt))

	return code, nil
}

// Redeem atomically removes and returns the entry for code
func (s *MemoryStore) Redeem(ctx context.Context, code string) (*entities.AuthCode, error) {
	s.mu.Lock()
	entry, ok := s.codes[code]
	if ok {
		delete(s.codes, code)
	}
	s.mu.Unlock()

	if !ok {
		return nil, repositories.ErrAuthCodeNotFound
	}

	if entry.IsExpired(s.now()) {
		// Already removed above; an expired code is indistinguishable from
		// an unknown one.
		return nil, repositories.ErrAuthCodeNotFound
	}

	return &entry, nil
}

// Close stops the background sweep. Safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		select {
		case <-s.done:
			// No janitor to stop
		default:
			close(s.stop)
			<-s.done
		}
	})
	return nil
}

// Sweep removes entries whose TTL elapsed without redemption and returns
// the number removed.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for code, entry := range s.codes {
		if entry.IsExpired(now) {
			delete(s.codes, code)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Debug("swept expired auth codes", slog.Int("count", n))
			}
		case <-s.stop:
			return
		}
	}
}

// generateCode returns a URL-safe opaque code with codeBytes of entropy.
// Collisions are not checked for; 256 bits of randomness is the guarantee.
func generateCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
