package services

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"log/slog"

	"github.com/samber/lo"
)

type IPresenceService interface {
	Online(ctx context.Context, username string) error
	Offline(ctx context.Context, username string) error
	Sync(ctx context.Context, username string) error
}

// PresenceService tells friends, and only friends, when a user comes and goes.
type PresenceService struct {
	ledger   contract.Ledger
	registry contract.IRegistry
	notifier Notifier
	log      *slog.Logger
}

func NewPresenceService(ledger contract.Ledger, registry contract.IRegistry, log *slog.Logger) *PresenceService {
	return &PresenceService{
		ledger:   ledger,
		registry: registry,
		notifier: NewNotifier(registry, log),
		log:      log,
	}
}

// Online notifies every online friend, then tells the user which friends
// were already online.
func (s *PresenceService) Online(ctx context.Context, username string) error {
	friends, err := s.onlineFriends(username)
	if err != nil {
		return err
	}
	for _, friend := range friends {
		s.notifier.Notify(ctx, friend, event.NewUserOnline(username))
		s.notifier.Notify(ctx, username, event.NewUserOnline(friend))
	}
	return nil
}

// Sync only tells the user which friends are online. Used when a connection
// replaces another one of the same user, friends saw no change.
func (s *PresenceService) Sync(ctx context.Context, username string) error {
	friends, err := s.onlineFriends(username)
	if err != nil {
		return err
	}
	for _, friend := range friends {
		s.notifier.Notify(ctx, username, event.NewUserOnline(friend))
	}
	return nil
}

func (s *PresenceService) onlineFriends(username string) ([]string, error) {
	user, err := s.ledger.GetUser(username)
	if err != nil {
		return nil, errors.Storage(err)
	}
	return lo.Filter(user.Friends.Sorted(), func(friend string, _ int) bool {
		return s.registry.IsOnline(friend)
	}), nil
}

func (s *PresenceService) Offline(ctx context.Context, username string) error {
	user, err := s.ledger.GetUser(username)
	if err != nil {
		return errors.Storage(err)
	}
	for _, friend := range user.Friends.Sorted() {
		s.notifier.Notify(ctx, friend, event.NewUserOffline(username))
	}
	s.log.Debug("User offline", "username", username, "friends", len(user.Friends))
	return nil
}
