package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/internal/domain/cart"
)

// CartIDHeader identifies the cart session of a request.
const CartIDHeader = "X-Cart-ID"

// storeKey is the single store key owned by a session's ledger.
func storeKey(id uuid.UUID) string {
	return "cart:" + id.String()
}

// session serializes access to one ledger. The ledger itself is
// single-writer, so every operation on it runs under mu. refs and lastUsed
// are guarded by Sessions.mu.
type session struct {
	mu     sync.Mutex
	ledger *cart.Ledger
	lines  int

	refs     int
	lastUsed time.Time
}

// Sessions maps cart ids to ledgers. Ledgers are created lazily and reload
// their lines from the store, so an evicted session loses nothing that was
// persisted.
type Sessions struct {
	store  cart.Store
	base   cart.Config
	lg     *zap.Logger
	now    func() time.Time
	onLine func(delta int)

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// NewSessions creates a registry whose ledgers share store and base config.
// onLine, when set, receives the change in line count after every ledger
// change.
func NewSessions(store cart.Store, base cart.Config, lg *zap.Logger, onLine func(delta int)) *Sessions {
	if lg == nil {
		lg = zap.NewNop()
	}
	if onLine == nil {
		onLine = func(int) {}
	}
	return &Sessions{
		store:    store,
		base:     base,
		lg:       lg,
		now:      time.Now,
		onLine:   onLine,
		sessions: make(map[uuid.UUID]*session),
	}
}

// acquire pins the session of id so Evict cannot drop it while in use.
func (s *Sessions) acquire(id uuid.UUID) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{}
		s.sessions[id] = sess
	}
	sess.refs++
	return sess
}

func (s *Sessions) release(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.refs--
	sess.lastUsed = s.now()
}

// With runs fn with exclusive access to the ledger of cart id.
func (s *Sessions) With(id uuid.UUID, fn func(l *cart.Ledger) error) error {
	sess := s.acquire(id)
	defer s.release(sess)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.ledger == nil {
		cfg := s.base
		cfg.Key = storeKey(id)
		sess.ledger = cart.NewLedger(cfg, s.store, s.lg.With(zap.Stringer("cart_id", id)))
		sess.lines = sess.ledger.Len()
		s.onLine(sess.lines)
		sess.ledger.Subscribe(func(snap cart.Snapshot) {
			// Runs under sess.mu: observers are called synchronously by the
			// mutating ledger operation.
			s.onLine(len(snap.Items) - sess.lines)
			sess.lines = len(snap.Items)
		})
	}
	return fn(sess.ledger)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Evict drops sessions idle for longer than idle. Their carts stay in the
// store and are reloaded on the next request.
func (s *Sessions) Evict(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, sess := range s.sessions {
		if sess.refs == 0 && sess.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			s.onLine(-sess.lines)
			evicted++
		}
	}
	return evicted
}

// Run evicts idle sessions every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Evict(idle); n > 0 {
				s.lg.Debug("Evicted idle cart sessions", zap.Int("count", n))
			}
		}
	}
}
