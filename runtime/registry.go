package runtime

import (
	"chat-relay/contract"
	"slices"
	"sync"

	"github.com/samber/lo"
)

var _ contract.IRegistry = (*Registry)(nil)

// Registry is the single source of truth for who is online.
// It keeps both directions so that a transport close, which only knows its
// connection, can free the username in O(1).
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]contract.Connection // username -> live connection
	usernames map[string]string              // connection id -> username
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:  make(map[string]contract.Connection),
		usernames: make(map[string]string),
	}
}

// Bind associates conn with username. Last connection wins: a previous
// connection of the same username is detached and returned to the caller,
// which decides what to do with it.
func (r *Registry) Bind(conn contract.Connection, username string) contract.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A connection rebinding under another name first leaves its old one
	if previousName, ok := r.usernames[conn.ID()]; ok && previousName != username {
		delete(r.sessions, previousName)
	}

	superseded, ok := r.sessions[username]
	if ok && superseded.ID() != conn.ID() {
		delete(r.usernames, superseded.ID())
	} else {
		superseded = nil
	}

	r.sessions[username] = conn
	r.usernames[conn.ID()] = username
	return superseded
}

// Unbind removes the association of conn. The username is reported as freed
// only when conn was still its live connection.
func (r *Registry) Unbind(conn contract.Connection) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	username, ok := r.usernames[conn.ID()]
	if !ok {
		return "", false
	}
	delete(r.usernames, conn.ID())

	live, ok := r.sessions[username]
	if !ok || live.ID() != conn.ID() {
		return "", false
	}
	delete(r.sessions, username)
	return username, true
}

func (r *Registry) Lookup(username string) (contract.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.sessions[username]
	return conn, ok
}

func (r *Registry) IsOnline(username string) bool {
	_, ok := r.Lookup(username)
	return ok
}

// Online returns the online usernames in lexical order.
func (r *Registry) Online() []string {
	r.mu.RLock()
	names := lo.Keys(r.sessions)
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
