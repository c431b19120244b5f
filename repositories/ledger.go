package repositories

import (
	"chat-relay/contract"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// Ensure *Ledger implements the contract.Ledger interface at compile time.
var _ contract.Ledger = (*Ledger)(nil)

// Ledger is the BadgerDB backed store for users and messages.
type Ledger struct {
	UserRepository
	MessageRepository
}

func NewLedger(db *badger.DB, log *slog.Logger) *Ledger {
	return &Ledger{
		UserRepository:    NewUserRepository(db),
		MessageRepository: NewMessageRepository(db, log),
	}
}

// OpenInMemory opens a Badger instance that lives only as long as the process.
func OpenInMemory() (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.ERROR))
}
