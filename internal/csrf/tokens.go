package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"time"

	"gatekeeper/internal/models"
)

// tokenBytes is the entropy of a synchronizer token (256 bits).
const tokenBytes = 32

type tokenEntry struct {
	token     string
	expiresAt time.Time
}

// TokenStore keeps one synchronizer token per session. A token is valid for
// exactly one successful Validate call made before it expires.
type TokenStore struct {
	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	random        io.Reader

	mu      sync.Mutex
	entries map[string]tokenEntry
	done    chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

// TokenOption configures a TokenStore.
type TokenOption func(*TokenStore)

// WithTokenClock overrides the time source.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenStore) {
		s.now = now
	}
}

// WithRandom overrides the entropy source.
func WithRandom(r io.Reader) TokenOption {
	return func(s *TokenStore) {
		s.random = r
	}
}

// NewTokenStore creates a token store whose tokens live for ttl, and starts
// a goroutine that removes expired tokens every sweepInterval.
func NewTokenStore(ttl, sweepInterval time.Duration, opts ...TokenOption) *TokenStore {
	s := &TokenStore{
		ttl:           ttl,
		sweepInterval: sweepInterval,
		now:           time.Now,
		random:        rand.Reader,
		entries:       make(map[string]tokenEntry),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if sweepInterval > 0 {
		s.wg.Add(1)
		go s.sweepLoop()
	}
	return s
}

// Issue creates a token for sessionID, replacing any earlier one. An empty
// sessionID binds the token to the anonymous session.
func (s *TokenStore) Issue(sessionID string) (string, time.Time, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate csrf token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	expiresAt := s.now().Add(s.ttl)

	s.mu.Lock()
	s.entries[sessionKey(sessionID)] = tokenEntry{token: token, expiresAt: expiresAt}
	s.mu.Unlock()

	return token, expiresAt, nil
}

// Validate reports whether token is the live token for sessionID and
// consumes it on success.
func (s *TokenStore) Validate(sessionID, token string) bool {
	if token == "" {
		return false
	}
	key := sessionKey(sessionID)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if !now.Before(e.expiresAt) {
		delete(s.entries, key)
		return false
	}
	if subtle.ConstantTimeCompare([]byte(e.token), []byte(token)) != 1 {
		return false
	}
	delete(s.entries, key)
	return true
}

// Len returns the number of stored tokens, expired ones included until swept.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the sweep goroutine. It is safe to call more than once.
func (s *TokenStore) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *TokenStore) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes expired tokens. Expiry is decided on a snapshot taken under
// the lock, and each deletion rechecks the entry so a token reissued in the
// meantime survives.
func (s *TokenStore) sweep() int {
	now := s.now()

	s.mu.Lock()
	snapshot := make(map[string]time.Time, len(s.entries))
	for k, e := range s.entries {
		snapshot[k] = e.expiresAt
	}
	s.mu.Unlock()

	var expired []string
	for k, exp := range snapshot {
		if !now.Before(exp) {
			expired = append(expired, k)
		}
	}
	if len(expired) == 0 {
		return 0
	}

	removed := 0
	s.mu.Lock()
	for _, k := range expired {
		if e, ok := s.entries[k]; ok && !now.Before(e.expiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}

func sessionKey(sessionID string) string {
	if sessionID == "" {
		return models.AnonymousIdentity
	}
	return sessionID
}
