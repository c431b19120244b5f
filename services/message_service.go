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
	"time"

	"github.com/google/uuid"
)

type IMessageService interface {
	Send(ctx context.Context, from, to, body string, timestamp time.Time) (domain.Message, error)
	History(ctx context.Context, userA, userB string) ([]domain.Message, error)
	MarkSeen(ctx context.Context, messageID, from, to string) (bool, error)
}

// MessageService persists direct messages and relays them to live connections.
type MessageService struct {
	ledger   contract.Ledger
	locker   *runtime.KeyedLocker
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

func NewMessageService(ledger contract.Ledger, locker *runtime.KeyedLocker, registry contract.IRegistry, log *slog.Logger) *MessageService {
	return &MessageService{
		ledger:   ledger,
		locker:   locker,
		notifier: NewNotifier(registry, log),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Send stores the message then delivers it to the recipient, if online, and echoes
// it to the sender as a confirmation. Offline recipients get it through History only.
// A zero timestamp is replaced by the server clock, others are kept in UTC.
func (s *MessageService) Send(ctx context.Context, from, to, body string, timestamp time.Time) (domain.Message, error) {
	if domain.IsBlank(body) {
		return domain.Message{}, errors.ErrEmptyBody
	}

	// Ids are drawn under the pair lock so that id order is send order
	unlock := s.locker.Lock(domain.PairKey(from, to))
	defer unlock()

	_, err := s.ledger.GetUser(to)
	if stderrors.Is(err, errors.ErrUnknownUser) {
		return domain.Message{}, fmt.Errorf("%w: %s", errors.ErrUnknownRecipient, to)
	}
	if err != nil {
		return domain.Message{}, errors.Storage(err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.Message{}, fmt.Errorf("message id: %w", err)
	}
	if timestamp.IsZero() {
		timestamp = s.now()
	}
	message := domain.Message{
		ID:        id.String(),
		From:      from,
		To:        to,
		Body:      body,
		Timestamp: timestamp.UTC(),
	}
	if err = s.ledger.AppendMessage(message); err != nil {
		return domain.Message{}, errors.Storage(err)
	}

	delivered := s.notifier.Notify(ctx, to, event.NewNewMessage(message))
	if from != to {
		s.notifier.Notify(ctx, from, event.NewNewMessage(message))
	}
	s.log.Debug("Message stored", "id", message.ID, "from", from, "to", to, "delivered", delivered)
	return message, nil
}

// History returns the conversation of the unordered pair in send order.
func (s *MessageService) History(_ context.Context, userA, userB string) ([]domain.Message, error) {
	messages, err := s.ledger.FindMessages(userA, userB)
	if err != nil {
		return nil, errors.Storage(err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}

// MarkSeen flags a message as seen on behalf of from, who must be its recipient.
// When to is not empty it must match the stored sender.
// Forged, unknown or already seen acknowledgements are dropped without error;
// only storage failures are returned.
func (s *MessageService) MarkSeen(ctx context.Context, messageID, from, to string) (bool, error) {
	message, applied, err := s.ledger.UpdateMessage(messageID, func(m *domain.Message) bool {
		if m.Seen || m.To != from || (to != "" && m.From != to) {
			return false
		}
		m.Seen = true
		return true
	})
	if stderrors.Is(err, errors.ErrUnknownMessage) {
		s.log.Debug("Seen acknowledgement for unknown message", "id", messageID, "by", from)
		return false, nil
	}
	if err != nil {
		return false, errors.Storage(err)
	}
	if !applied {
		s.log.Debug("Seen acknowledgement ignored", "id", messageID, "by", from)
		return false, nil
	}

	s.notifier.Notify(ctx, message.From, event.NewMessageSeen(message.ID))
	return true, nil
}
