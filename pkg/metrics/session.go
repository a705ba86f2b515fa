package metrics

// SessionMetrics provides observability for client sessions and the stream
// servants they own.
type SessionMetrics interface {
	// SetActiveSessions updates the current number of open sessions.
	SetActiveSessions(count int)

	// RecordSessionClosed records a session teardown.
	//
	// Parameters:
	//   - reason: "closed", "expired", "evicted" or "shutdown"
	RecordSessionClosed(reason string)

	// RecordServantOpened increments the open servant gauge for a kind.
	RecordServantOpened(kind string)

	// RecordServantClosed decrements the open servant gauge for a kind.
	RecordServantClosed(kind string)
}

// NewNoopSessionMetrics returns a SessionMetrics that records nothing.
func NewNoopSessionMetrics() SessionMetrics {
	return noopSessionMetrics{}
}

type noopSessionMetrics struct{}

func (noopSessionMetrics) SetActiveSessions(count int)       {}
func (noopSessionMetrics) RecordSessionClosed(reason string) {}
func (noopSessionMetrics) RecordServantOpened(kind string)   {}
func (noopSessionMetrics) RecordServantClosed(kind string)   {}
