package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	messagePrefix      = "msg:"
	indexPrefix        = "idx:msg:"
	maxConflictRetries = 3
)

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

type DiskMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	Seen      bool   `json:"seen"`
}

// messageKey is formatted as "msg:{low}:{high}:{id}" so that:
//  1. every message of an unordered pair shares one prefix, whoever sent it.
//  2. ids being time-ordered, a prefix scan returns the pair in persistence order.
//
// Usernames are restricted to alphanumerics at registration, ':' never appears in them.
func messageKey(m domain.Message) []byte {
	return []byte(pairPrefix(m.From, m.To) + m.ID)
}

func pairPrefix(a, b string) string {
	return messagePrefix + domain.PairKey(a, b) + ":"
}

// indexKey points from a message id to its primary key.
func indexKey(id string) []byte {
	return []byte(indexPrefix + id)
}

// AppendMessage stores the message and its id index in one transaction.
func (m MessageRepository) AppendMessage(message domain.Message) error {
	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	key := messageKey(message)
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(indexKey(message.ID), key)
	})
}

// FindMessages retrieves the conversation of a pair using a prefix scan.
func (m MessageRepository) FindMessages(userA, userB string) ([]domain.Message, error) {
	messages := []domain.Message{}
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(pairPrefix(userA, userB))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				message, err := DecodeMessage(val)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// UpdateMessage resolves the id through the index and applies mutation inside
// a single read-write transaction, replayed when a concurrent commit conflicts.
func (m MessageRepository) UpdateMessage(id string, mutation func(*domain.Message) bool) (domain.Message, bool, error) {
	var (
		message domain.Message
		applied bool
		err     error
	)
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		message, applied, err = m.updateOnce(id, mutation)
		if !stderrors.Is(err, badger.ErrConflict) {
			break
		}
		m.log.Debug("Conflict while updating message, retrying", "id", id, "attempt", attempt)
	}
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		m.log.Debug("Message not found", "id", id)
		return domain.Message{}, false, fmt.Errorf("%w: %s", errors.ErrUnknownMessage, id)
	}
	if err != nil {
		return domain.Message{}, false, err
	}
	return message, applied, nil
}

func (m MessageRepository) updateOnce(id string, mutation func(*domain.Message) bool) (domain.Message, bool, error) {
	var (
		message domain.Message
		applied bool
	)
	err := m.db.Update(func(txn *badger.Txn) error {
		indexItem, err := txn.Get(indexKey(id))
		if err != nil {
			return err
		}
		key, err := indexItem.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		if err = item.Value(func(val []byte) error {
			message, err = DecodeMessage(val)
			return err
		}); err != nil {
			return err
		}
		if applied = mutation(&message); !applied {
			return nil
		}
		bytes, err := json.Marshal(fromMessage(message))
		if err != nil {
			return fmt.Errorf("marshal failed: %w", err)
		}
		return txn.Set(key, bytes)
	})
	return message, applied, err
}

func DecodeMessage(val []byte) (domain.Message, error) {
	var disk DiskMessage
	if err := json.Unmarshal(val, &disk); err != nil {
		return domain.Message{}, fmt.Errorf("unmarshal failed: %w", err)
	}
	return toMessage(disk), nil
}

func fromMessage(message domain.Message) DiskMessage {
	return DiskMessage{
		ID:        message.ID,
		From:      message.From,
		To:        message.To,
		Body:      message.Body,
		Timestamp: message.Timestamp.UnixNano(),
		Seen:      message.Seen,
	}
}

func toMessage(disk DiskMessage) domain.Message {
	return domain.Message{
		ID:        disk.ID,
		From:      disk.From,
		To:        disk.To,
		Body:      disk.Body,
		Timestamp: time.Unix(0, disk.Timestamp).UTC(),
		Seen:      disk.Seen,
	}
}
