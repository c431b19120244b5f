package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newMessage(t *testing.T, from, to, body string, at time.Time) domain.Message {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return domain.Message{ID: id.String(), From: from, To: to, Body: body, Timestamp: at}
}

func Test_Record_And_Find_Pair_Messages(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(newTestDB(t), slog.Default())
	at := time.Now().UTC()

	// Given a conversation in both directions and an unrelated one
	conversation := []domain.Message{
		newMessage(t, "alice", "bob", "hi", at),
		newMessage(t, "bob", "alice", "hello", at.Add(time.Second)),
		newMessage(t, "alice", "bob", "how are you", at.Add(2*time.Second)),
	}
	for _, m := range conversation {
		req.NoError(repository.AppendMessage(m))
	}
	req.NoError(repository.AppendMessage(newMessage(t, "alice", "carol", "psst", at)))

	// When fetching from either side
	fromAlice, err := repository.FindMessages("alice", "bob")
	req.NoError(err)
	fromBob, err := repository.FindMessages("bob", "alice")
	req.NoError(err)

	// Then both see the same ordered conversation
	req.Equal(conversation, fromAlice)
	req.Equal(fromAlice, fromBob)
}

func Test_Find_Messages_Keeps_Persistence_Order(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(newTestDB(t), slog.Default())
	at := time.Now().UTC()

	// Caller supplied timestamps going backwards don't reorder the conversation
	for i := 0; i < 10; i++ {
		m := newMessage(t, "alice", "bob", fmt.Sprintf("message %d", i), at.Add(-time.Duration(i)*time.Minute))
		req.NoError(repository.AppendMessage(m))
	}

	messages, err := repository.FindMessages("alice", "bob")
	req.NoError(err)
	req.Len(messages, 10)
	for i, m := range messages {
		req.Equal(fmt.Sprintf("message %d", i), m.Body)
	}
}

func Test_Find_Messages_Empty_Pair(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(newTestDB(t), slog.Default())

	messages, err := repository.FindMessages("alice", "bob")
	req.NoError(err)
	req.NotNil(messages)
	req.Empty(messages)
}

func Test_Update_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(newTestDB(t), slog.Default())
	message := newMessage(t, "alice", "bob", "hi", time.Now().UTC())
	req.NoError(repository.AppendMessage(message))

	// When the mutation applies
	updated, applied, err := repository.UpdateMessage(message.ID, func(m *domain.Message) bool {
		m.Seen = true
		return true
	})
	req.NoError(err)
	req.True(applied)
	req.True(updated.Seen)

	// Then the change is persisted
	messages, err := repository.FindMessages("alice", "bob")
	req.NoError(err)
	req.True(messages[0].Seen)

	// And a refused mutation changes nothing
	_, applied, err = repository.UpdateMessage(message.ID, func(m *domain.Message) bool {
		return false
	})
	req.NoError(err)
	req.False(applied)
}

func Test_Update_Unknown_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(newTestDB(t), slog.Default())

	_, applied, err := repository.UpdateMessage(uuid.NewString(), func(m *domain.Message) bool {
		return true
	})
	req.ErrorIs(err, errors.ErrUnknownMessage)
	req.False(applied)
}

func Test_Concurrent_Updates_Apply_Once(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(newTestDB(t), slog.Default())
	message := newMessage(t, "alice", "bob", "hi", time.Now().UTC())
	req.NoError(repository.AppendMessage(message))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repository.UpdateMessage(message.ID, func(m *domain.Message) bool {
				if m.Seen {
					return false
				}
				m.Seen = true
				return true
			})
			if err == nil && ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	req.LessOrEqual(applied, 1)
	messages, err := repository.FindMessages("alice", "bob")
	req.NoError(err)
	req.True(messages[0].Seen)
}
