package session

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mcoot/skirmish/internal/dependencies/clock"
	"github.com/mcoot/skirmish/internal/model"
	"github.com/mcoot/skirmish/internal/protocol"
)

var ErrShuttingDown = errors.New("session registry is shutting down")

// Conn is the part of a client connection the services need
type Conn interface {
	ID() uint64
	// Send encodes and writes msg; best-effort, callers may ignore the error
	Send(msg protocol.Message) error
	Close() error
	IsOpen() bool
}

// Session is an authenticated account bound to its live connection
type Session struct {
	AccountID     model.AccountID
	Conn          Conn
	CreatedAt     time.Time
	LastHeartbeat time.Time

	// Set while the account is in a running battle
	BattleID         model.BattleID
	TransportSession string
}

// InBattle reports whether the session is bound to a running battle
func (s Session) InBattle() bool {
	return s.BattleID != ""
}

// Registry is the single source of truth for which connection owns an account.
// At most one session exists per account.
type Registry struct {
	clock  clock.Clock
	logger *slog.Logger

	mu           sync.RWMutex
	sessions     map[model.AccountID]*Session
	shuttingDown bool
}

// NewRegistry creates an empty registry
func NewRegistry(clk clock.Clock, logger *slog.Logger) *Registry {
	return &Registry{
		clock:    clk,
		logger:   logger.With(slog.String("component", "session-registry")),
		sessions: make(map[model.AccountID]*Session),
	}
}

// Create installs conn as the session for id. Any previous session for the
// account is evicted and its connection closed.
func (r *Registry) Create(id model.AccountID, conn Conn) (Session, error) {
	now := r.clock.Now()
	sess := &Session{
		AccountID:     id,
		Conn:          conn,
		CreatedAt:     now,
		LastHeartbeat: now,
	}

	r.mu.Lock()
	if r.shuttingDown {
		r.mu.Unlock()
		_ = conn.Close()
		return Session{}, ErrShuttingDown
	}
	old := r.sessions[id]
	r.sessions[id] = sess
	r.mu.Unlock()

	if old != nil && old.Conn.ID() != conn.ID() {
		r.logger.Info("evicting previous session",
			slog.Int64("account_id", int64(id)),
			slog.Uint64("old_conn_id", old.Conn.ID()),
			slog.Uint64("conn_id", conn.ID()))
		_ = old.Conn.Close()
	}
	return *sess, nil
}

// Remove deletes the session for id and closes its connection. Absent ids are ignored.
func (r *Registry) Remove(id model.AccountID) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok && sess.Conn.IsOpen() {
		_ = sess.Conn.Close()
	}
}

// Release deletes the session for id only if it is still owned by conn.
// Returns false when the account has since logged in on another connection.
func (r *Registry) Release(id model.AccountID, conn Conn) bool {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if !ok || sess.Conn.ID() != conn.ID() {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	if conn.IsOpen() {
		_ = conn.Close()
	}
	return true
}

// Get returns a copy of the session for id
func (r *Registry) Get(id model.AccountID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// IsActive reports whether id has a session whose connection is still open
func (r *Registry) IsActive(id model.AccountID) bool {
	sess, ok := r.Get(id)
	return ok && sess.Conn.IsOpen()
}

// Owns reports whether conn is the current session connection for id
func (r *Registry) Owns(id model.AccountID, conn Conn) bool {
	sess, ok := r.Get(id)
	return ok && sess.Conn.ID() == conn.ID()
}

// Touch records a heartbeat for id
func (r *Registry) Touch(id model.AccountID) {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		sess.LastHeartbeat = now
	}
}

// SetBattle marks id as playing in battle. Returns false if id has no session.
func (r *Registry) SetBattle(id model.AccountID, battle model.BattleID, transportSession string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return false
	}
	sess.BattleID = battle
	sess.TransportSession = transportSession
	return true
}

// ClearBattle resets the in-battle state of id if it still refers to battle
func (r *Registry) ClearBattle(id model.AccountID, battle model.BattleID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok && sess.BattleID == battle {
		sess.BattleID = ""
		sess.TransportSession = ""
	}
}

// StartShutdown rejects new sessions, then removes every live session,
// closing its connection. Returns the number of sessions removed.
func (r *Registry) StartShutdown() int {
	r.mu.Lock()
	r.shuttingDown = true
	ids := make([]model.AccountID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Remove(id)
	}
	r.logger.Info("closed all sessions", slog.Int("count", len(ids)))
	return len(ids)
}

// Count returns the number of sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// AccountIDs returns every account with a session, in ascending order
func (r *Registry) AccountIDs() []model.AccountID {
	r.mu.RLock()
	ids := make([]model.AccountID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Send delivers msg to id's connection if it has a session. Best-effort.
func (r *Registry) Send(id model.AccountID, msg protocol.Message) bool {
	sess, ok := r.Get(id)
	if !ok || !sess.Conn.IsOpen() {
		return false
	}
	return sess.Conn.Send(msg) == nil
}
