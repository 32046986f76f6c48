package mcp

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL is how long an idle session survives before the reaper
// evicts it. Sessions have no client-driven expiry, so idle eviction is what
// keeps an abandoned client from accumulating engines forever.
const DefaultSessionTTL = 30 * time.Minute

// Session binds one server-minted identifier to one protocol engine plus an
// optional push channel. A session ID, once issued, resolves to the same
// engine until the session is torn down.
type Session struct {
	ID        string
	Engine    *Engine
	CreatedAt time.Time

	mu         sync.Mutex
	lastSeenAt time.Time
	push       chan []byte // nil until a push stream attaches
}

// touch refreshes the idle clock.
func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeenAt = now
	s.mu.Unlock()
}

// LastSeen returns the time of the most recent activity on the session.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeenAt
}

// AttachPush installs a server-push channel on the session, replacing any
// previous one, and returns it. The channel is buffered so a slow consumer
// drops notifications instead of blocking tool dispatch.
func (s *Session) AttachPush() chan []byte {
	ch := make(chan []byte, 16)
	s.mu.Lock()
	s.push = ch
	s.mu.Unlock()
	return ch
}

// Push delivers a payload to the session's push channel, if one is attached.
// Delivery is best-effort: a full channel drops the payload.
func (s *Session) Push(payload []byte) {
	s.mu.Lock()
	ch := s.push
	s.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- payload:
	default:
	}
}

// SessionRegistry owns the set of live sessions. It is constructed once at
// process start and passed by reference to request handlers. It is the only
// mutable state shared across concurrent requests, guarded by a single mutex
// so that two requests racing to create a session under the same identifier
// produce exactly one engine.
type SessionRegistry struct {
	registry   *Registry
	serverInfo ServerInfo
	ttl        time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionRegistry creates a session registry whose engines dispatch into
// the given tool registry. A ttl of zero selects DefaultSessionTTL.
func NewSessionRegistry(registry *Registry, info ServerInfo, ttl time.Duration) *SessionRegistry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionRegistry{
		registry:   registry,
		serverInfo: info,
		ttl:        ttl,
		sessions:   make(map[string]*Session),
	}
}

// Resolve returns the live session named by id. When id is empty or
// unknown it mints a fresh globally-unique identifier, constructs a new
// engine, records the session, and returns it. The created flag reports
// whether a new session was minted.
//
// Lookup and creation happen inside one critical section, so concurrent
// first-touch resolutions for the same id observe exactly one winner.
func (r *SessionRegistry) Resolve(id string) (*Session, bool) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		if sess, ok := r.sessions[id]; ok {
			sess.touch(now)
			return sess, false
		}
	}

	sess := &Session{
		ID:         uuid.New().String(),
		Engine:     NewEngine(r.registry, r.serverInfo),
		CreatedAt:  now,
		lastSeenAt: now,
	}
	r.sessions[sess.ID] = sess
	return sess, true
}

// Get returns the live session named by id without creating one.
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Terminate removes the session and closes its engine. It reports false when
// no such session exists; tearing down an unknown session is not an error
// condition for the caller.
func (r *SessionRegistry) Terminate(id string) bool {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	sess.Engine.Close()
	return true
}

// OnTransportClosed tears the session down when the transport reports that
// the underlying connection dropped, so abrupt disconnects do not leak
// sessions.
func (r *SessionRegistry) OnTransportClosed(id string) {
	if r.Terminate(id) {
		log.Printf("mcp: session %s closed by transport", id)
	}
}

// Broadcast pushes a payload to every live session's SSE channel. Delivery
// is best-effort per session.
func (r *SessionRegistry) Broadcast(payload []byte) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Push(payload)
	}
}

// Len reports the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// StartReaper runs idle-session eviction until ctx is cancelled, sweeping at
// the given interval.
func (r *SessionRegistry) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.reap(time.Now()); n > 0 {
					log.Printf("mcp: reaped %d idle sessions", n)
				}
			}
		}
	}()
}

// reap evicts sessions idle longer than the TTL and returns the count.
func (r *SessionRegistry) reap(now time.Time) int {
	cutoff := now.Add(-r.ttl)

	r.mu.Lock()
	var stale []*Session
	for id, sess := range r.sessions {
		if sess.LastSeen().Before(cutoff) {
			delete(r.sessions, id)
			stale = append(stale, sess)
		}
	}
	r.mu.Unlock()

	for _, sess := range stale {
		sess.Engine.Close()
	}
	return len(stale)
}
