//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Connection is one open transport session.
// Send must be safe for concurrent use and must not block past ctx.
type Connection interface {
	ID() string
	Send(ctx context.Context, e event.Outbound) error
	Close() error
}

// Ledger is the durable store for users and messages.
// Users are read and replaced as whole records; callers serialise writers.
type Ledger interface {
	// GetUser returns errors.ErrUnknownUser when the record doesn't exist.
	GetUser(username string) (domain.User, error)
	PutUser(user domain.User) error
	ListUsers() ([]domain.User, error)
	AppendMessage(message domain.Message) error
	// FindMessages returns the messages of the unordered pair in ID order.
	FindMessages(userA, userB string) ([]domain.Message, error)
	// UpdateMessage applies mutation atomically and persists it when it returns true.
	// It returns errors.ErrUnknownMessage when the id doesn't exist.
	UpdateMessage(id string, mutation func(*domain.Message) bool) (domain.Message, bool, error)
}

type Authenticator interface {
	Register(username, secret string) error
	Authenticate(username, secret string) error
}

type TokenIssuer interface {
	Generate(username string) (string, error)
	// Validate returns the username the token was issued for.
	Validate(token string) (string, error)
}

// IRegistry is the directory of live connections, at most one per username.
type IRegistry interface {
	// Bind returns the connection it superseded, if any.
	Bind(conn Connection, username string) Connection
	// Unbind frees the username only if conn still owns it.
	Unbind(conn Connection) (string, bool)
	Lookup(username string) (Connection, bool)
	IsOnline(username string) bool
	Online() []string
	Count() int
}
