package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/marmos91/dittorepo/pkg/stream"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session is closed")
	ErrServantNotFound = errors.New("servant not found")
	ErrTooManyServants = errors.New("too many open servants in session")
	ErrInvalidToken    = errors.New("invalid proxy token")
)

// Session is one client's conversation with the server. It owns the stream
// servants created on its behalf; closing the session closes them.
type Session struct {
	ID      string
	Client  string
	Created time.Time

	mu          sync.Mutex
	servants    map[uint32]stream.Servant
	nextServant uint32
	maxServants int
	closed      bool
	metrics     metrics.SessionMetrics
	lastUsed    atomic.Int64
}

func newSession(id, client string, maxServants int, m metrics.SessionMetrics) *Session {
	s := &Session{
		ID:          id,
		Client:      client,
		Created:     time.Now().UTC(),
		servants:    make(map[uint32]stream.Servant),
		maxServants: maxServants,
		metrics:     m,
	}
	s.touch()
	return s
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

func (s *Session) idleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastUsed.Load()))
}

// Add registers a servant and returns the proxy addressing it. On error the
// servant is not owned by the session and the caller must close it.
func (s *Session) Add(sv stream.Servant) (Proxy, error) {
	if sv == nil {
		return Proxy{}, fmt.Errorf("nil servant")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Proxy{}, ErrSessionClosed
	}
	if s.maxServants > 0 && len(s.servants) >= s.maxServants {
		return Proxy{}, fmt.Errorf("%w (limit %d)", ErrTooManyServants, s.maxServants)
	}

	s.nextServant++
	id := s.nextServant
	s.servants[id] = sv
	s.metrics.RecordServantOpened(string(sv.Kind()))

	return Proxy{SessionID: s.ID, ServantID: id, Kind: sv.Kind()}, nil
}

// Lookup returns the servant registered under id.
func (s *Session) Lookup(id uint32) (stream.Servant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	sv, ok := s.servants[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrServantNotFound, id)
	}
	return sv, nil
}

// Release removes and closes one servant.
func (s *Session) Release(id uint32) error {
	s.mu.Lock()
	sv, ok := s.servants[id]
	if ok {
		delete(s.servants, id)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrServantNotFound, id)
	}
	s.metrics.RecordServantClosed(string(sv.Kind()))
	return sv.Close()
}

// Servants returns the number of open servants.
func (s *Session) Servants() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.servants)
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the session down, closing every servant it owns. Errors from
// individual servants are joined. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	servants := s.servants
	s.servants = make(map[uint32]stream.Servant)
	s.mu.Unlock()

	var errs []error
	for id, sv := range servants {
		s.metrics.RecordServantClosed(string(sv.Kind()))
		if err := sv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("servant %d (%s): %w", id, sv.Path(), err))
		}
	}
	if len(servants) > 0 {
		logger.Debug("Session %s closed %d servant(s)", s.ID, len(servants))
	}
	return errors.Join(errs...)
}
