package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/runtime"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

type IFriendService interface {
	SendRequest(ctx context.Context, from, to string) error
	AcceptRequest(ctx context.Context, from, to string) error
	RejectRequest(ctx context.Context, from, to string) error
	ListFriends(ctx context.Context, username string) ([]domain.FriendStatus, error)
	ListPendingRequests(ctx context.Context, username string) ([]string, error)
}

// FriendService maintains the friendship graph.
// Every record it rewrites is held under the KeyedLocker for the whole
// read-modify-persist cycle, so concurrent requests never lose an update.
type FriendService struct {
	ledger   contract.Ledger
	locker   *runtime.KeyedLocker
	registry contract.IRegistry
	notifier Notifier
	log      *slog.Logger
}

func NewFriendService(ledger contract.Ledger, locker *runtime.KeyedLocker, registry contract.IRegistry, log *slog.Logger) *FriendService {
	return &FriendService{
		ledger:   ledger,
		locker:   locker,
		registry: registry,
		notifier: NewNotifier(registry, log),
		log:      log,
	}
}

// SendRequest records from in the pending requests of to.
func (s *FriendService) SendRequest(ctx context.Context, from, to string) error {
	if from == to {
		return errors.ErrSelfRequest
	}

	unlock := s.locker.Lock(to)
	defer unlock()

	target, err := s.getUser(to)
	if err != nil {
		return err
	}
	if target.Friends.Has(from) {
		return errors.ErrAlreadyFriends
	}
	if !target.PendingRequests.Add(from) {
		return errors.ErrDuplicateRequest
	}
	if err = s.ledger.PutUser(target); err != nil {
		return errors.Storage(err)
	}

	s.log.Debug("Friend request recorded", "from", from, "to", to)
	s.notifier.Notify(ctx, to, event.NewLoadRequests(target.PendingRequests.Sorted()))
	return nil
}

// AcceptRequest makes from and to friends. It is idempotent: accepting twice,
// or accepting without a pending request, converges to the same graph.
// A crossed request from to towards from is cleared as well.
// The accepter is written first and restored if the requester can't be written,
// so a storage failure leaves no one-sided friendship behind.
func (s *FriendService) AcceptRequest(ctx context.Context, from, to string) error {
	if from == to {
		return errors.ErrSelfRequest
	}

	unlock := s.locker.Lock(from, to)
	defer unlock()

	requester, err := s.getUser(from)
	if err != nil {
		return err
	}
	accepter, err := s.getUser(to)
	if err != nil {
		return err
	}

	previous := accepter.Clone()
	accepter.PendingRequests.Remove(from)
	requester.PendingRequests.Remove(to)
	accepter.Friends.Add(from)
	requester.Friends.Add(to)

	if err = s.ledger.PutUser(accepter); err != nil {
		return errors.Storage(err)
	}
	if err = s.ledger.PutUser(requester); err != nil {
		if rollback := s.ledger.PutUser(previous); rollback != nil {
			s.log.Error("Restoring accepter failed, friendship is one-sided until accepted again",
				"from", from, "to", to, "error", rollback)
		}
		return errors.Storage(err)
	}

	s.log.Debug("Friend request accepted", "from", from, "to", to)
	s.notifier.Notify(ctx, to, event.NewLoadFriends(s.statuses(accepter)))
	s.notifier.Notify(ctx, to, event.NewLoadRequests(accepter.PendingRequests.Sorted()))
	s.notifier.Notify(ctx, from, event.NewLoadFriends(s.statuses(requester)))
	s.notifier.Notify(ctx, from, event.NewLoadRequests(requester.PendingRequests.Sorted()))
	return nil
}

// RejectRequest drops the pending request of from. Rejecting an absent request is a no-op.
func (s *FriendService) RejectRequest(ctx context.Context, from, to string) error {
	unlock := s.locker.Lock(to)
	defer unlock()

	accepter, err := s.getUser(to)
	if err != nil {
		return err
	}
	if accepter.PendingRequests.Remove(from) {
		if err = s.ledger.PutUser(accepter); err != nil {
			return errors.Storage(err)
		}
		s.log.Debug("Friend request rejected", "from", from, "to", to)
	}

	s.notifier.Notify(ctx, to, event.NewLoadRequests(accepter.PendingRequests.Sorted()))
	return nil
}

// ListFriends returns the friends of username sorted by name, each with its live presence.
func (s *FriendService) ListFriends(_ context.Context, username string) ([]domain.FriendStatus, error) {
	user, err := s.getUser(username)
	if err != nil {
		return nil, err
	}
	return s.statuses(user), nil
}

func (s *FriendService) ListPendingRequests(_ context.Context, username string) ([]string, error) {
	user, err := s.getUser(username)
	if err != nil {
		return nil, err
	}
	return user.PendingRequests.Sorted(), nil
}

func (s *FriendService) statuses(user domain.User) []domain.FriendStatus {
	return lo.Map(user.Friends.Sorted(), func(friend string, _ int) domain.FriendStatus {
		return domain.FriendStatus{Username: friend, Online: s.registry.IsOnline(friend)}
	})
}

func (s *FriendService) getUser(username string) (domain.User, error) {
	user, err := s.ledger.GetUser(username)
	if stderrors.Is(err, errors.ErrUnknownUser) {
		return domain.User{}, err
	}
	if err != nil {
		return domain.User{}, errors.Storage(fmt.Errorf("get user %s: %w", username, err))
	}
	return user, nil
}
