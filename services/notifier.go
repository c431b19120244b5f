package services

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"log/slog"
)

// Notifier delivers an event to the live connection of a username, if any.
// Delivery is best effort: offline users and failing connections are logged and skipped.
type Notifier struct {
	registry contract.IRegistry
	log      *slog.Logger
}

func NewNotifier(registry contract.IRegistry, log *slog.Logger) Notifier {
	return Notifier{registry: registry, log: log}
}

// Notify returns true when the event was handed to a live connection.
func (n Notifier) Notify(ctx context.Context, username string, e event.Outbound) bool {
	conn, ok := n.registry.Lookup(username)
	if !ok {
		n.log.Debug("Recipient offline, event dropped", "username", username, "type", e.Type)
		return false
	}
	if err := conn.Send(ctx, e); err != nil {
		n.log.Warn("Delivery failed", "username", username, "type", e.Type, "connection", conn.ID(), "error", err)
		return false
	}
	return true
}
