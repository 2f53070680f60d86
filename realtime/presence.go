package realtime

import "sync"

// Presence maps user IDs to their active connection. The primary key is the
// connection ID with a secondary user index, so there is exactly one entry
// per live connection and disconnect lookups are O(1).
//
// A Presence only mutates its own state; broadcasting presence changes is the
// caller's responsibility.
type Presence struct {
	mu     sync.RWMutex
	byConn map[string]string // connection ID -> user ID
	byUser map[string]string // user ID -> connection ID
}

// NewPresence returns an empty presence table.
func NewPresence() *Presence {
	return &Presence{
		byConn: make(map[string]string),
		byUser: make(map[string]string),
	}
}

// Register maps userID to connID, unconditionally replacing any existing
// mapping for either the user or the connection. Last join wins: a second
// join for the same user detaches the previous connection's entry without
// closing that connection.
func (p *Presence) Register(userID, connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prevUser, ok := p.byConn[connID]; ok && p.byUser[prevUser] == connID {
		delete(p.byUser, prevUser)
	}
	if prevConn, ok := p.byUser[userID]; ok {
		delete(p.byConn, prevConn)
	}
	p.byConn[connID] = userID
	p.byUser[userID] = connID
}

// Unregister removes the entry for connID and reports the user ID it was
// registered under. Unregistering a connection that never joined, or whose
// entry was superseded by a later join, is a no-op.
func (p *Presence) Unregister(connID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	userID, ok := p.byConn[connID]
	if !ok {
		return "", false
	}
	delete(p.byConn, connID)
	if p.byUser[userID] == connID {
		delete(p.byUser, userID)
	}
	return userID, true
}

// Lookup reports the connection currently registered for userID.
func (p *Presence) Lookup(userID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	connID, ok := p.byUser[userID]
	return connID, ok
}

// Snapshot returns the set of online user IDs in unspecified order.
func (p *Presence) Snapshot() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	users := make([]string, 0, len(p.byUser))
	for userID := range p.byUser {
		users = append(users, userID)
	}
	return users
}
