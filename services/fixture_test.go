package services

import (
	"chat-relay/internal/testkit"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"testing"
)

type fixture struct {
	ledger   *repositories.Ledger
	registry *runtime.Registry
	locker   *runtime.KeyedLocker
}

func newFixture(t *testing.T, usernames ...string) fixture {
	t.Helper()
	f := fixture{
		ledger:   testkit.NewLedger(t),
		registry: runtime.NewRegistry(),
		locker:   runtime.NewKeyedLocker(),
	}
	testkit.SeedUsers(t, f.ledger, usernames...)
	return f
}

func (f fixture) connect(username string) *testkit.Recorder {
	conn := testkit.NewRecorder()
	f.registry.Bind(conn, username)
	return conn
}

func (f fixture) friendService() *FriendService {
	return NewFriendService(f.ledger, f.locker, f.registry, testkit.Logger())
}

func (f fixture) messageService() *MessageService {
	return NewMessageService(f.ledger, f.locker, f.registry, testkit.Logger())
}

func (f fixture) presenceService() *PresenceService {
	return NewPresenceService(f.ledger, f.registry, testkit.Logger())
}
