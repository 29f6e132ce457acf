package domain

import "sync"

// Role is what a connection currently is to the game.
type Role string

const (
	RoleUnset     Role = "unset"
	RoleLobby     Role = "lobby"
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

// Session is the per-connection state record. The registry owns its
// lifecycle; the coordinator owns its mutations.
type Session struct {
	ID     string
	Wallet string
	Role   Role
}

// Registry tracks one session per connected client. It is pure
// bookkeeping: no validation, no game logic.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register creates a session for connID, or returns the existing one.
func (r *Registry) Register(connID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connID]; ok {
		return s
	}
	s := &Session{ID: connID, Role: RoleUnset}
	r.sessions[connID] = s
	return s
}

// Lookup returns the session for connID, if any.
func (r *Registry) Lookup(connID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	return s, ok
}

// Remove destroys the session for connID.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, connID)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ResetRoles reverts every session to RoleUnset. Wallets are kept; a
// reconnecting round does not re-prove address ownership.
func (r *Registry) ResetRoles() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		s.Role = RoleUnset
	}
}
