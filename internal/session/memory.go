package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// sessionEntry tracks a stored user and when it was last read or written.
type sessionEntry struct {
	user       User
	lastAccess time.Time
}

// MemoryBackend keeps sessions in process memory. A background goroutine
// removes sessions idle for longer than the timeout; Close stops it.
type MemoryBackend struct {
	sessions       map[string]*sessionEntry
	mu             sync.RWMutex
	cleanupTicker  *time.Ticker
	cleanupDone    chan struct{}
	closeOnce      sync.Once
	sessionTimeout time.Duration
	now            func() time.Time
	logger         *slog.Logger
	onExpire       func(n int)
}

// NewMemoryBackend returns a MemoryBackend with the given idle timeout.
// A zero timeout means DefaultTTL.
func NewMemoryBackend(timeout time.Duration, logger *slog.Logger) *MemoryBackend {
	if timeout <= 0 {
		timeout = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &MemoryBackend{
		sessions:       make(map[string]*sessionEntry),
		cleanupTicker:  time.NewTicker(10 * time.Minute),
		cleanupDone:    make(chan struct{}),
		sessionTimeout: timeout,
		now:            time.Now,
		logger:         logger,
	}

	go b.cleanupLoop()

	return b
}

// OnExpire registers fn to receive the number of sessions dropped for
// inactivity, whether found by a Load or by the cleanup sweep.
func (b *MemoryBackend) OnExpire(fn func(n int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onExpire = fn
}

func (b *MemoryBackend) Load(_ context.Context, id string) (*User, error) {
	b.mu.Lock()
	entry, ok := b.sessions[id]
	if !ok {
		b.mu.Unlock()
		return nil, ErrNotFound
	}
	now := b.now()
	if b.expired(entry, now) {
		delete(b.sessions, id)
		notify := b.onExpire
		b.mu.Unlock()
		if notify != nil {
			notify(1)
		}
		return nil, ErrNotFound
	}

	entry.lastAccess = now
	u := entry.user
	b.mu.Unlock()
	return &u, nil
}

func (b *MemoryBackend) Save(_ context.Context, id string, u User) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sessions[id] = &sessionEntry{user: u, lastAccess: b.now()}
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.sessions, id)
	return nil
}

// Len returns the number of stored sessions, expired or not.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (b *MemoryBackend) Close() error {
	b.closeOnce.Do(func() {
		b.cleanupTicker.Stop()
		close(b.cleanupDone)
	})
	return nil
}

func (b *MemoryBackend) expired(entry *sessionEntry, now time.Time) bool {
	return now.Sub(entry.lastAccess) > b.sessionTimeout
}

// sweep removes expired sessions and returns how many it removed.
func (b *MemoryBackend) sweep() int {
	b.mu.Lock()
	now := b.now()
	expiredCount := 0
	for id, entry := range b.sessions {
		if b.expired(entry, now) {
			delete(b.sessions, id)
			expiredCount++
		}
	}
	notify := b.onExpire
	b.mu.Unlock()

	if notify != nil && expiredCount > 0 {
		notify(expiredCount)
	}
	return expiredCount
}

func (b *MemoryBackend) cleanupLoop() {
	for {
		select {
		case <-b.cleanupTicker.C:
			if n := b.sweep(); n > 0 {
				b.logger.Info("Cleaned up expired sessions", "count", n)
			}
		case <-b.cleanupDone:
			return
		}
	}
}

var (
	_ Backend        = (*MemoryBackend)(nil)
	_ ExpiryNotifier = (*MemoryBackend)(nil)
)
