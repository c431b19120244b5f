package gateway

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/internal/testkit"
	"chat-relay/runtime"
	"chat-relay/services"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

type harness struct {
	gateway  *Gateway
	registry *runtime.Registry
}

func newHarness(t *testing.T) harness {
	t.Helper()
	return newHarnessWithLedger(t, testkit.NewLedger(t))
}

func newHarnessWithLedger(t *testing.T, ledger contract.Ledger) harness {
	t.Helper()
	log := testkit.Logger()
	locker := runtime.NewKeyedLocker()
	registry := runtime.NewRegistry()
	typing := services.NewTypingService(registry, time.Hour, log)
	t.Cleanup(typing.Close)

	g := New(Dependencies{
		Authenticator: services.NewAuthService(ledger, locker, log),
		Tokens:        auth.NewTokenManager("test-secret", time.Hour),
		Registry:      registry,
		Friends:       services.NewFriendService(ledger, locker, registry, log),
		Messages:      services.NewMessageService(ledger, locker, registry, log),
		Presence:      services.NewPresenceService(ledger, registry, log),
		Typing:        typing,
		Locker:        locker,
	}, time.Second, log)
	return harness{gateway: g, registry: registry}
}

func (h harness) open() (*Session, *testkit.Recorder) {
	conn := testkit.NewRecorder()
	return h.gateway.NewSession(conn), conn
}

// join registers and logs username in on a fresh connection.
func (h harness) join(t *testing.T, username, secret string) (*Session, *testkit.Recorder) {
	t.Helper()
	session, conn := h.open()
	send(t, session, event.Register, event.Credentials{Username: username, Secret: secret})
	_, ok := conn.Last(event.RegisterSuccess)
	require.True(t, ok, "registration of %s", username)
	send(t, session, event.Login, event.Credentials{Username: username, Secret: secret})
	require.Equal(t, Authenticated, session.State())
	return session, conn
}

func send(t *testing.T, session *Session, eventType event.Type, payload any) {
	t.Helper()
	in := event.Inbound{Type: eventType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		in.Data = raw
	}
	session.Handle(context.Background(), in)
}

func befriend(t *testing.T, from *Session, to *Session, toConn *testkit.Recorder) {
	t.Helper()
	send(t, from, event.SendFriendRequest, event.ToPayload{To: to.Username()})
	send(t, to, event.AcceptRequest, event.FromPayload{From: from.Username()})
	_, ok := toConn.Last(event.LoadFriends)
	require.True(t, ok)
}

func TestGateway_Alice_And_Bob(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	// Given alice and bob registered and logged in
	aliceSession, alice := h.join(t, "alice", "pw1")
	bobSession, bob := h.join(t, "bob", "pw2")

	login, ok := alice.Last(event.LoginSuccess)
	req.True(ok)
	req.Equal("alice", login.Data.(event.LoginPayload).Username)
	req.NotEmpty(login.Data.(event.LoginPayload).Token)

	// When alice asks bob
	send(t, aliceSession, event.SendFriendRequest, event.ToPayload{To: "bob"})

	// Then alice gets a result and bob sees her request
	result, ok := alice.Last(event.FriendRequestResult)
	req.True(ok)
	req.Equal(event.ResultPayload{Success: true, Message: "Friend request sent"}, result.Data)
	requests, ok := bob.Last(event.LoadRequests)
	req.True(ok)
	req.Equal([]string{"alice"}, requests.Data)

	// When bob accepts
	send(t, bobSession, event.AcceptRequest, event.FromPayload{From: "alice"})

	// Then both lists contain each other and bob has nothing pending
	friends, ok := alice.Last(event.LoadFriends)
	req.True(ok)
	req.Equal([]domain.FriendStatus{{Username: "bob", Online: true}}, friends.Data)
	friends, ok = bob.Last(event.LoadFriends)
	req.True(ok)
	req.Equal([]domain.FriendStatus{{Username: "alice", Online: true}}, friends.Data)
	requests, ok = bob.Last(event.LoadRequests)
	req.True(ok)
	req.Equal([]string{}, requests.Data)

	// When alice says hi
	send(t, aliceSession, event.SendMessage, event.SendMessagePayload{To: "bob", Body: "hi", Timestamp: time.Now()})

	// Then bob receives it unseen
	received, ok := bob.Last(event.NewMessage)
	req.True(ok)
	message := received.Data.(event.MessagePayload).Message
	req.Equal("hi", message.Body)
	req.Equal("alice", message.From)
	req.False(message.Seen)

	// When bob acknowledges it
	send(t, bobSession, event.MessageSeen, event.SeenPayload{MessageID: message.ID})

	// Then alice is told and history shows it seen
	seen, ok := alice.Last(event.MessageSeen)
	req.True(ok)
	req.Equal(event.MessageIDPayload{MessageID: message.ID}, seen.Data)

	send(t, aliceSession, event.GetChatHistory, event.HistoryPayload{Peer: "bob"})
	history, ok := alice.Last(event.ChatHistory)
	req.True(ok)
	messages := history.Data.([]domain.Message)
	req.Len(messages, 1)
	req.Equal(message.ID, messages[0].ID)
	req.True(messages[0].Seen)
}

func TestGateway_Message_To_Offline_User(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	// Given dave registered but is not logged in
	daveSession, dave := h.open()
	send(t, daveSession, event.Register, event.Credentials{Username: "dave", Secret: "pw4"})
	carolSession, _ := h.join(t, "carol", "pw3")

	// When carol writes to dave
	send(t, carolSession, event.SendMessage, event.SendMessagePayload{To: "dave", Body: "ping", Timestamp: time.Now()})

	// Then nothing reached dave live
	req.Empty(dave.OfType(event.NewMessage))

	// And he finds it after logging in
	send(t, daveSession, event.Login, event.Credentials{Username: "dave", Secret: "pw4"})
	send(t, daveSession, event.GetChatHistory, event.HistoryPayload{Peer: "carol"})
	history, ok := dave.Last(event.ChatHistory)
	req.True(ok)
	messages := history.Data.([]domain.Message)
	req.Len(messages, 1)
	req.Equal("ping", messages[0].Body)
	req.False(messages[0].Seen)
	req.Empty(dave.OfType(event.NewMessage))
}

func TestGateway_Unauthenticated_Events_Rejected(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	session, conn := h.open()

	for _, eventType := range []event.Type{event.SendMessage, event.GetFriends, event.Typing, event.Logout} {
		conn.Reset()
		send(t, session, eventType, nil)

		req.Equal([]event.Outbound{event.NewError("unauthorized")}, conn.Events(), eventType)
		req.Equal(Unauthenticated, session.State())
	}
}

func TestGateway_Login_Failures(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.join(t, "alice", "pw1")
	session, conn := h.open()

	send(t, session, event.Login, event.Credentials{Username: "alice", Secret: "wrong"})
	last, ok := conn.Last(event.LoginError)
	req.True(ok)
	req.Equal(event.ReasonPayload{Reason: "invalid username or secret"}, last.Data)

	send(t, session, event.Login, event.Credentials{Username: "nobody", Secret: "pw1"})
	last, _ = conn.Last(event.LoginError)
	req.Equal(event.ReasonPayload{Reason: "invalid username or secret"}, last.Data)

	session.Handle(context.Background(), event.Inbound{Type: event.Login, Data: json.RawMessage(`[1,2]`)})
	last, _ = conn.Last(event.LoginError)
	req.Equal(event.ReasonPayload{Reason: "malformed event"}, last.Data)

	req.Equal(Unauthenticated, session.State())
}

func TestGateway_Register_Failures(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.join(t, "alice", "pw1")
	session, conn := h.open()

	send(t, session, event.Register, event.Credentials{Username: "alice", Secret: "pw1"})
	last, ok := conn.Last(event.RegisterError)
	req.True(ok)
	req.Equal(event.ReasonPayload{Reason: "username already exists"}, last.Data)

	send(t, session, event.Register, event.Credentials{Username: "x", Secret: "pw1"})
	last, _ = conn.Last(event.RegisterError)
	req.Equal(event.ReasonPayload{Reason: "invalid credentials format"}, last.Data)
}

func TestGateway_Second_Login_On_Same_Session(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	session, conn := h.join(t, "alice", "pw1")

	send(t, session, event.Login, event.Credentials{Username: "alice", Secret: "pw1"})

	last, ok := conn.Last(event.LoginError)
	req.True(ok)
	req.Equal(event.ReasonPayload{Reason: "already authenticated"}, last.Data)
	req.Len(conn.OfType(event.LoginSuccess), 1)
}

func TestGateway_Presence_On_Login_And_Logout(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	aliceSession, alice := h.join(t, "alice", "pw1")
	bobSession, bob := h.join(t, "bob", "pw2")
	befriend(t, aliceSession, bobSession, bob)

	// When alice leaves
	send(t, aliceSession, event.Logout, nil)

	// Then bob is told, alice's connection is closed and the session is done
	req.Equal([]event.Outbound{event.NewUserOffline("alice")}, bob.OfType(event.UserOffline))
	req.True(alice.Closed())
	req.Equal(Closed, aliceSession.State())
	req.False(h.registry.IsOnline("alice"))

	// And events after closing are dropped
	alice.Reset()
	send(t, aliceSession, event.GetFriends, nil)
	req.Empty(alice.Events())

	// When alice comes back on a new connection
	bob.Reset()
	newSession, again := h.open()
	send(t, newSession, event.Login, event.Credentials{Username: "alice", Secret: "pw1"})

	// Then bob hears it and alice learns bob is there
	req.Equal([]event.Outbound{event.NewUserOnline("alice")}, bob.OfType(event.UserOnline))
	req.Equal([]event.Outbound{event.NewUserOnline("bob")}, again.OfType(event.UserOnline))
	friends, ok := again.Last(event.LoadFriends)
	req.True(ok)
	req.Equal([]domain.FriendStatus{{Username: "bob", Online: true}}, friends.Data)
}

func TestGateway_New_Login_Supersedes_Previous_Connection(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	first, firstConn := h.join(t, "alice", "pw1")
	bobSession, bob := h.join(t, "bob", "pw2")
	befriend(t, first, bobSession, bob)
	bob.Reset()

	// When alice logs in again elsewhere
	second, secondConn := h.open()
	send(t, second, event.Login, event.Credentials{Username: "alice", Secret: "pw1"})

	// Then bob hears nothing, alice never went away, but the new connection learns bob is online
	req.Empty(bob.OfType(event.UserOnline))
	req.Equal([]event.Outbound{event.NewUserOnline("bob")}, secondConn.OfType(event.UserOnline))

	// Then the first connection is told and closed
	_, ok := firstConn.Last(event.SessionReplaced)
	req.True(ok)
	req.True(firstConn.Closed())
	req.Equal(Closed, first.State())
	conn, ok := h.registry.Lookup("alice")
	req.True(ok)
	req.Equal(secondConn.ID(), conn.ID())

	// And the old transport going away doesn't take alice offline
	first.Close(context.Background())
	req.True(h.registry.IsOnline("alice"))
	req.Empty(bob.OfType(event.UserOffline))

	// While closing the live one does
	second.Close(context.Background())
	req.False(h.registry.IsOnline("alice"))
	req.Len(bob.OfType(event.UserOffline), 1)
	req.Equal(1, h.gateway.Sessions())
}

func TestGateway_Resume(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	first, firstConn := h.join(t, "alice", "pw1")
	login, _ := firstConn.Last(event.LoginSuccess)
	token := login.Data.(event.LoginPayload).Token
	first.Close(context.Background())

	// When a new connection presents the token
	session, conn := h.open()
	send(t, session, event.Resume, event.ResumePayload{Token: token})

	// Then it is authenticated as alice
	req.Equal(Authenticated, session.State())
	req.Equal("alice", session.Username())
	_, ok := conn.Last(event.LoginSuccess)
	req.True(ok)

	// And a forged token is refused
	other, otherConn := h.open()
	send(t, other, event.Resume, event.ResumePayload{Token: token + "x"})
	last, ok := otherConn.Last(event.LoginError)
	req.True(ok)
	req.Equal(event.ReasonPayload{Reason: "invalid or expired token"}, last.Data)
	req.Equal(Unauthenticated, other.State())
}

func TestGateway_Typing_Stops_On_Send(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	aliceSession, _ := h.join(t, "alice", "pw1")
	_, bob := h.join(t, "bob", "pw2")
	bob.Reset()

	send(t, aliceSession, event.Typing, event.ToPayload{To: "bob"})
	send(t, aliceSession, event.SendMessage, event.SendMessagePayload{To: "bob", Body: "done typing"})

	types := make([]event.Type, 0, 3)
	for _, e := range bob.Events() {
		types = append(types, e.Type)
	}
	req.Equal([]event.Type{event.Typing, event.NewMessage, event.StopTyping}, types)
}

func TestGateway_Errors_Reported(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	session, conn := h.join(t, "alice", "pw1")

	tests := []struct {
		description string
		in          event.Inbound
		reason      string
	}{
		{"Should report an unknown recipient", event.Inbound{Type: event.SendMessage, Data: json.RawMessage(`{"to":"ghost","body":"hi"}`)}, "unknown recipient"},
		{"Should report an empty body", event.Inbound{Type: event.SendMessage, Data: json.RawMessage(`{"to":"alice","body":"  "}`)}, "message body is empty"},
		{"Should report a malformed payload", event.Inbound{Type: event.Typing, Data: json.RawMessage(`"bob"`)}, "malformed event"},
		{"Should report an unknown event", event.Inbound{Type: "dance"}, "unknown event"},
		{"Should report an unknown requester", event.Inbound{Type: event.AcceptRequest, Data: json.RawMessage(`{"from":"ghost"}`)}, "unknown user"},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			conn.Reset()
			session.Handle(context.Background(), tt.in)
			require.Equal(t, []event.Outbound{event.NewError(tt.reason)}, conn.Events())
		})
	}

	// A failed friend request is a result, not an error
	conn.Reset()
	send(t, session, event.SendFriendRequest, event.ToPayload{To: "alice"})
	req.Equal([]event.Outbound{event.NewFriendRequestResult(false, "cannot befriend yourself")}, conn.Events())
}

// slowLedger holds the first GetUser of a username until released.
type slowLedger struct {
	contract.Ledger
	mu       sync.Mutex
	username string
	entered  chan struct{}
	release  chan struct{}
}

func (l *slowLedger) hold(username string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.username = username
	l.entered = make(chan struct{})
	l.release = make(chan struct{})
}

func (l *slowLedger) GetUser(username string) (domain.User, error) {
	l.mu.Lock()
	held := l.username != "" && l.username == username
	entered, release := l.entered, l.release
	if held {
		l.username = ""
	}
	l.mu.Unlock()
	if held {
		close(entered)
		<-release
	}
	return l.Ledger.GetUser(username)
}

func TestGateway_Offline_Broadcast_Does_Not_Overtake_Next_Login(t *testing.T) {
	req := require.New(t)
	ledger := &slowLedger{Ledger: testkit.NewLedger(t)}
	h := newHarnessWithLedger(t, ledger)
	first, _ := h.join(t, "alice", "pw1")
	bobSession, bob := h.join(t, "bob", "pw2")
	befriend(t, first, bobSession, bob)
	bob.Reset()

	// Given the offline broadcast of alice's first connection is stuck reading the ledger
	ledger.hold("alice")
	closed := make(chan struct{})
	go func() {
		first.Close(context.Background())
		close(closed)
	}()
	<-ledger.entered

	// When alice logs in again meanwhile
	second, _ := h.open()
	loggedIn := make(chan struct{})
	go func() {
		send(t, second, event.Login, event.Credentials{Username: "alice", Secret: "pw1"})
		close(loggedIn)
	}()
	time.Sleep(50 * time.Millisecond)
	close(ledger.release)
	<-closed
	<-loggedIn

	// Then bob's last word on alice is that she is online
	req.True(h.registry.IsOnline("alice"))
	presence := lo.Filter(bob.Events(), func(e event.Outbound, _ int) bool {
		return e.Type == event.UserOnline || e.Type == event.UserOffline
	})
	req.Equal([]event.Outbound{event.NewUserOffline("alice"), event.NewUserOnline("alice")}, presence)
}
