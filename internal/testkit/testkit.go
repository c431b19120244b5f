// Package testkit holds fixtures shared by package tests.
package testkit

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/repositories"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

var _ contract.Connection = (*Recorder)(nil)

// Recorder is a Connection keeping every event it is sent.
type Recorder struct {
	id     string
	mu     sync.Mutex
	events []event.Outbound
	closed bool
}

func NewRecorder() *Recorder {
	return &Recorder{id: uuid.NewString()}
}

func (r *Recorder) ID() string { return r.id }

func (r *Recorder) Send(_ context.Context, e event.Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Recorder) Events() []event.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Outbound(nil), r.events...)
}

// OfType returns the events of one type, in reception order.
func (r *Recorder) OfType(t event.Type) []event.Outbound {
	return lo.Filter(r.Events(), func(e event.Outbound, _ int) bool {
		return e.Type == t
	})
}

// Last returns the most recent event of a type.
func (r *Recorder) Last(t event.Type) (event.Outbound, bool) {
	return lo.Last(r.OfType(t))
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// NewLedger returns a Ledger over an in-memory Badger closed with the test.
func NewLedger(t *testing.T) *repositories.Ledger {
	t.Helper()
	db, err := repositories.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return repositories.NewLedger(db, Logger())
}

// SeedUsers stores bare users, skipping secret hashing.
func SeedUsers(t *testing.T, ledger contract.Ledger, usernames ...string) {
	t.Helper()
	for _, username := range usernames {
		require.NoError(t, ledger.PutUser(domain.NewUser(username, "", time.Now().UTC())))
	}
}

func Logger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func Now() time.Time {
	return time.Now().UTC()
}
