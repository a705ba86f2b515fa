// Package session tracks client sessions and the stream servants they own.
//
// A Manager hands out sessions identified by random UUIDs. Sessions expire
// after a configurable idle period; every access refreshes the deadline.
// Whenever a session leaves the table (explicit close, idle expiry, capacity
// eviction, shutdown) all of its servants are closed.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/marmos91/dittorepo/pkg/stream"
)

// Config configures a Manager.
type Config struct {
	// MaxSessions bounds the table; the least recently used session is
	// evicted when full. 0 means unbounded.
	MaxSessions int `mapstructure:"max_sessions" validate:"gte=0" yaml:"max_sessions"`

	// IdleTimeout closes sessions not used for this long. 0 disables expiry.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gte=0" yaml:"idle_timeout"`

	// MaxServantsPerSession bounds open servants per session. 0 means unbounded.
	MaxServantsPerSession int `mapstructure:"max_servants_per_session" validate:"gte=0" yaml:"max_servants_per_session"`
}

// Manager is the session table.
type Manager struct {
	cfg      Config
	sessions *expirable.LRU[string, *Session]
	metrics  metrics.SessionMetrics
	active   atomic.Int64

	// closing records why a session is being removed so the eviction
	// callback can report it; absent entries were expired or evicted.
	// Lock order: the LRU's lock before mu; never call m.sessions under mu.
	mu      sync.Mutex
	closing map[string]string
}

// NewManager creates a session table. A nil m disables metrics.
func NewManager(cfg Config, m metrics.SessionMetrics) *Manager {
	if m == nil {
		m = metrics.NewNoopSessionMetrics()
	}

	mgr := &Manager{
		cfg:     cfg,
		metrics: m,
		closing: make(map[string]string),
	}
	mgr.sessions = expirable.NewLRU[string, *Session](cfg.MaxSessions, mgr.onEvict, cfg.IdleTimeout)
	return mgr
}

// onEvict runs with the LRU's lock held and must not call back into m.sessions.
func (m *Manager) onEvict(id string, s *Session) {
	m.mu.Lock()
	reason, ok := m.closing[id]
	delete(m.closing, id)
	m.mu.Unlock()

	if !ok {
		reason = "evicted"
		if m.cfg.IdleTimeout > 0 && s.idleFor() >= m.cfg.IdleTimeout {
			reason = "expired"
		}
	}

	if err := s.Close(); err != nil {
		logger.Warn("Session %s (%s): errors closing servants: %v", id, reason, err)
	}
	logger.Debug("Session %s removed (%s)", id, reason)

	m.metrics.RecordSessionClosed(reason)
	m.metrics.SetActiveSessions(int(m.active.Add(-1)))
}

// Create opens a new session for client (an address or user agent, for logs).
func (m *Manager) Create(client string) *Session {
	s := newSession(uuid.NewString(), client, m.cfg.MaxServantsPerSession, m.metrics)
	m.active.Add(1)
	m.sessions.Add(s.ID, s)

	m.metrics.SetActiveSessions(int(m.active.Load()))
	logger.Debug("Session %s opened for %s", s.ID, client)
	return s
}

// Get returns a live session and refreshes its idle deadline.
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.sessions.Get(id)
	if !ok || s.Closed() {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	// Re-adding an existing key resets its expiry without eviction
	s.touch()
	m.sessions.Add(id, s)
	return s, nil
}

// Close removes a session and closes its servants.
func (m *Manager) Close(id string) error {
	if !m.sessions.Contains(id) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	m.mu.Lock()
	m.closing[id] = "closed"
	m.mu.Unlock()

	if !m.sessions.Remove(id) {
		m.mu.Lock()
		delete(m.closing, id)
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// Resolve returns the servant a proxy points at.
func (m *Manager) Resolve(p Proxy) (*Session, stream.Servant, error) {
	s, err := m.Get(p.SessionID)
	if err != nil {
		return nil, nil, err
	}
	sv, err := s.Lookup(p.ServantID)
	if err != nil {
		return nil, nil, err
	}
	return s, sv, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	keys := m.sessions.Keys()

	m.mu.Lock()
	for _, id := range keys {
		m.closing[id] = "shutdown"
	}
	m.mu.Unlock()

	m.sessions.Purge()
}
