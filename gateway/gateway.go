// Package gateway turns the inbound events of a connection into service calls
// and writes the resulting events back.
//
// Every connection gets a Session walking through
// Unauthenticated -> Authenticated -> Closed. Closed is terminal.
package gateway

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/runtime"
	"chat-relay/services"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dependencies groups the collaborators a Gateway dispatches to.
type Dependencies struct {
	Authenticator contract.Authenticator
	Tokens        contract.TokenIssuer
	Registry      contract.IRegistry
	Friends       services.IFriendService
	Messages      services.IMessageService
	Presence      services.IPresenceService
	Typing        services.ITypingService
	// Locker serialises the presence transitions of a username.
	Locker *runtime.KeyedLocker
}

type Gateway struct {
	Dependencies
	eventTimeout time.Duration
	log          *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session // connection id -> session
}

func New(deps Dependencies, eventTimeout time.Duration, log *slog.Logger) *Gateway {
	return &Gateway{
		Dependencies: deps,
		eventTimeout: eventTimeout,
		log:          log,
		sessions:     make(map[string]*Session),
	}
}

// NewSession starts tracking a freshly opened connection.
func (g *Gateway) NewSession(conn contract.Connection) *Session {
	s := &Session{
		gateway: g,
		conn:    conn,
		log:     g.log.With("connection", conn.ID()),
	}
	g.mu.Lock()
	g.sessions[conn.ID()] = s
	g.mu.Unlock()
	return s
}

// Sessions returns the number of sessions not yet closed.
func (g *Gateway) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

func (g *Gateway) forget(conn contract.Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, conn.ID())
}

// bind makes conn the live connection of username and evicts the one it replaces.
// It reports whether another connection was evicted, the user then was already online.
// Callers hold the username lock.
func (g *Gateway) bind(ctx context.Context, conn contract.Connection, username string) bool {
	superseded := g.Registry.Bind(conn, username)
	if superseded == nil || superseded.ID() == conn.ID() {
		return false
	}

	g.mu.Lock()
	previous, ok := g.sessions[superseded.ID()]
	delete(g.sessions, superseded.ID())
	g.mu.Unlock()
	if ok {
		// The username stays online, no presence change
		previous.state.Store(int32(Closed))
	}

	g.log.Info("Session replaced", "username", username, "old", superseded.ID(), "new", conn.ID())
	if err := superseded.Send(ctx, event.NewSessionReplaced()); err != nil {
		g.log.Debug("Superseded connection unreachable", "connection", superseded.ID(), "error", err)
	}
	if err := superseded.Close(); err != nil {
		g.log.Debug("Closing superseded connection failed", "connection", superseded.ID(), "error", err)
	}
	return true
}
