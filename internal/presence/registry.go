// Package presence tracks which identity is reachable through which live
// connection. One connection per identity; the newest registration wins.
package presence

import "sync"

// Conn is a live connection the relay can deliver events to.
type Conn interface {
	ID() string
	Emit(event string, payload any) error
}

// Registry maps identities to connections. It also keeps the reverse
// binding (connection ID -> identity) so a disconnect can find the identity
// it was serving. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Conn   // identity -> conn
	owners  map[string]string // conn ID -> identity
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]Conn),
		owners:  make(map[string]string),
	}
}

// Register binds identity to conn, replacing any previous binding for that
// identity. If conn was registered under a different identity, that stale
// binding is released first.
func (r *Registry) Register(identity string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.owners[conn.ID()]; ok && prev != identity {
		if cur, ok := r.entries[prev]; ok && cur.ID() == conn.ID() {
			delete(r.entries, prev)
		}
	}
	if old, ok := r.entries[identity]; ok && old.ID() != conn.ID() {
		delete(r.owners, old.ID())
	}
	r.entries[identity] = conn
	r.owners[conn.ID()] = identity
}

// Lookup returns the connection currently registered for identity.
func (r *Registry) Lookup(identity string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.entries[identity]
	return c, ok
}

// Remove deletes identity's entry. Removing an absent identity is a no-op.
func (r *Registry) Remove(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.entries[identity]; ok {
		delete(r.owners, c.ID())
		delete(r.entries, identity)
	}
}

// RemoveByConnection drops the entry served by conn. The entry is removed
// only if it still points at conn; a newer registration of the same
// identity on another connection is left alone.
func (r *Registry) RemoveByConnection(conn Conn) (identity string, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.owners[conn.ID()]
	if !ok {
		return "", false
	}
	delete(r.owners, conn.ID())
	if cur, ok := r.entries[identity]; ok && cur.ID() == conn.ID() {
		delete(r.entries, identity)
		return identity, true
	}
	return identity, false
}

// IdentityOf returns the identity conn is registered under.
func (r *Registry) IdentityOf(conn Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.owners[conn.ID()]
	return id, ok
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close drops every entry. Connections are not closed; the transport owns
// them.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Conn)
	r.owners = make(map[string]string)
}
