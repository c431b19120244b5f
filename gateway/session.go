package gateway

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

type State int32

const (
	Unauthenticated State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the state machine of one connection.
// Handle and Close are serialised; the state itself may also be moved to
// Closed by the gateway when another connection takes over the username.
type Session struct {
	gateway *Gateway
	conn    contract.Connection
	log     *slog.Logger

	handling sync.Mutex
	state    atomic.Int32
	username string
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Username is empty until the session is authenticated.
func (s *Session) Username() string {
	s.handling.Lock()
	defer s.handling.Unlock()
	return s.username
}

// Handle processes one inbound event within the gateway event timeout.
func (s *Session) Handle(ctx context.Context, in event.Inbound) {
	s.handling.Lock()
	defer s.handling.Unlock()

	if s.State() == Closed {
		s.log.Debug("Event dropped on closed session", "type", in.Type)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.gateway.eventTimeout)
	defer cancel()

	switch in.Type {
	case event.Register:
		s.register(ctx, in)
	case event.Login:
		s.login(ctx, in)
	case event.Resume:
		s.resume(ctx, in)
	default:
		if s.State() != Authenticated {
			s.log.Debug("Unauthenticated event rejected", "type", in.Type)
			s.reply(ctx, event.NewError(errors.Reason(errors.ErrUnauthorized)))
			return
		}
		s.dispatch(ctx, in)
	}
}

// Close ends the session after the transport went away.
func (s *Session) Close(ctx context.Context) {
	s.handling.Lock()
	defer s.handling.Unlock()
	s.terminate(ctx)
}

func (s *Session) register(ctx context.Context, in event.Inbound) {
	if s.State() == Authenticated {
		s.reply(ctx, event.NewRegisterError(errors.Reason(errors.ErrAlreadyAuthenticated)))
		return
	}
	credentials, err := event.Decode[event.Credentials](in)
	if err != nil {
		s.reply(ctx, event.NewRegisterError(errors.Reason(errors.ErrMalformedEvent)))
		return
	}
	if err = s.gateway.Authenticator.Register(credentials.Username, credentials.Secret); err != nil {
		s.log.Debug("Registration refused", "username", credentials.Username, "error", err)
		s.reply(ctx, event.NewRegisterError(errors.Reason(err)))
		return
	}
	s.reply(ctx, event.NewRegisterSuccess())
}

func (s *Session) login(ctx context.Context, in event.Inbound) {
	if s.State() == Authenticated {
		s.reply(ctx, event.NewLoginError(errors.Reason(errors.ErrAlreadyAuthenticated)))
		return
	}
	credentials, err := event.Decode[event.Credentials](in)
	if err != nil {
		s.reply(ctx, event.NewLoginError(errors.Reason(errors.ErrMalformedEvent)))
		return
	}
	if err = s.gateway.Authenticator.Authenticate(credentials.Username, credentials.Secret); err != nil {
		s.log.Debug("Login refused", "username", credentials.Username, "error", err)
		s.reply(ctx, event.NewLoginError(errors.Reason(err)))
		return
	}
	s.establish(ctx, credentials.Username)
}

// resume authenticates with a token handed out by a previous login_success.
func (s *Session) resume(ctx context.Context, in event.Inbound) {
	if s.State() == Authenticated {
		s.reply(ctx, event.NewLoginError(errors.Reason(errors.ErrAlreadyAuthenticated)))
		return
	}
	payload, err := event.Decode[event.ResumePayload](in)
	if err != nil {
		s.reply(ctx, event.NewLoginError(errors.Reason(errors.ErrMalformedEvent)))
		return
	}
	username, err := s.gateway.Tokens.Validate(payload.Token)
	if err != nil {
		s.log.Debug("Resume refused", "error", err)
		s.reply(ctx, event.NewLoginError(errors.Reason(err)))
		return
	}
	s.establish(ctx, username)
}

// establish binds the connection, pushes the initial state then announces the user.
func (s *Session) establish(ctx context.Context, username string) {
	g := s.gateway
	friends, err := g.Friends.ListFriends(ctx, username)
	if err != nil {
		s.reply(ctx, event.NewLoginError(errors.Reason(err)))
		return
	}
	requests, err := g.Friends.ListPendingRequests(ctx, username)
	if err != nil {
		s.reply(ctx, event.NewLoginError(errors.Reason(err)))
		return
	}
	token, err := g.Tokens.Generate(username)
	if err != nil {
		s.log.Error("Token generation failed", "username", username, "error", err)
		s.reply(ctx, event.NewLoginError(errors.Reason(errors.ErrTokenGeneration)))
		return
	}

	s.username = username
	s.state.Store(int32(Authenticated))
	s.log = s.log.With("username", username)

	unlock := g.Locker.Lock(username)
	defer unlock()
	superseded := g.bind(ctx, s.conn, username)

	s.reply(ctx, event.NewLoginSuccess(username, token))
	s.reply(ctx, event.NewLoadFriends(friends))
	s.reply(ctx, event.NewLoadRequests(requests))
	announce := g.Presence.Online
	if superseded {
		announce = g.Presence.Sync
	}
	if err = announce(ctx, username); err != nil {
		s.log.Warn("Online broadcast failed", "error", err)
	}
	s.log.Info("User logged in")
}

func (s *Session) logout(ctx context.Context) {
	s.terminate(ctx)
	if err := s.conn.Close(); err != nil {
		s.log.Debug("Closing connection failed", "error", err)
	}
}

// terminate moves to Closed. The user goes offline only if this connection
// was still the live one for it.
func (s *Session) terminate(ctx context.Context) {
	previous := State(s.state.Swap(int32(Closed)))
	s.gateway.forget(s.conn)
	if previous != Authenticated {
		return
	}

	g := s.gateway
	unlock := g.Locker.Lock(s.username)
	defer unlock()
	username, freed := g.Registry.Unbind(s.conn)
	if !freed {
		return
	}
	g.Typing.DropSender(ctx, username)
	if err := g.Presence.Offline(ctx, username); err != nil {
		s.log.Warn("Offline broadcast failed", "error", err)
	}
	s.log.Info("User logged out")
}

func (s *Session) dispatch(ctx context.Context, in event.Inbound) {
	g := s.gateway
	switch in.Type {
	case event.Logout:
		s.logout(ctx)

	case event.SendFriendRequest:
		payload, ok := decode[event.ToPayload](ctx, s, in)
		if !ok {
			return
		}
		if err := g.Friends.SendRequest(ctx, s.username, payload.To); err != nil {
			s.reply(ctx, event.NewFriendRequestResult(false, errors.Reason(err)))
			return
		}
		s.reply(ctx, event.NewFriendRequestResult(true, "Friend request sent"))

	case event.AcceptRequest:
		payload, ok := decode[event.FromPayload](ctx, s, in)
		if !ok {
			return
		}
		s.fail(ctx, g.Friends.AcceptRequest(ctx, payload.From, s.username))

	case event.RejectRequest:
		payload, ok := decode[event.FromPayload](ctx, s, in)
		if !ok {
			return
		}
		s.fail(ctx, g.Friends.RejectRequest(ctx, payload.From, s.username))

	case event.GetFriends:
		friends, err := g.Friends.ListFriends(ctx, s.username)
		if s.fail(ctx, err) {
			return
		}
		s.reply(ctx, event.NewLoadFriends(friends))

	case event.GetRequests:
		requests, err := g.Friends.ListPendingRequests(ctx, s.username)
		if s.fail(ctx, err) {
			return
		}
		s.reply(ctx, event.NewLoadRequests(requests))

	case event.SendMessage:
		payload, ok := decode[event.SendMessagePayload](ctx, s, in)
		if !ok {
			return
		}
		if _, err := g.Messages.Send(ctx, s.username, payload.To, payload.Body, payload.Timestamp); s.fail(ctx, err) {
			return
		}
		g.Typing.Interrupt(ctx, s.username, payload.To)

	case event.GetChatHistory:
		payload, ok := decode[event.HistoryPayload](ctx, s, in)
		if !ok {
			return
		}
		messages, err := g.Messages.History(ctx, s.username, payload.Peer)
		if s.fail(ctx, err) {
			return
		}
		s.reply(ctx, event.NewChatHistory(messages))

	case event.MessageSeen:
		payload, ok := decode[event.SeenPayload](ctx, s, in)
		if !ok {
			return
		}
		_, err := g.Messages.MarkSeen(ctx, payload.MessageID, s.username, payload.Peer)
		s.fail(ctx, err)

	case event.Typing:
		payload, ok := decode[event.ToPayload](ctx, s, in)
		if !ok {
			return
		}
		g.Typing.Typing(ctx, s.username, payload.To)

	case event.StopTyping:
		payload, ok := decode[event.ToPayload](ctx, s, in)
		if !ok {
			return
		}
		g.Typing.StopTyping(ctx, s.username, payload.To)

	default:
		s.log.Debug("Unknown event", "type", in.Type)
		s.reply(ctx, event.NewError(errors.Reason(errors.ErrUnknownEvent)))
	}
}

func decode[T any](ctx context.Context, s *Session, in event.Inbound) (T, bool) {
	payload, err := event.Decode[T](in)
	if err != nil {
		s.log.Debug("Malformed payload", "type", in.Type, "error", err)
		s.reply(ctx, event.NewError(errors.Reason(errors.ErrMalformedEvent)))
		return payload, false
	}
	return payload, true
}

// fail answers err with an error event and reports whether there was one.
func (s *Session) fail(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, errors.ErrStorage) {
		s.log.Error("Event failed", "error", err)
	}
	s.reply(ctx, event.NewError(errors.Reason(err)))
	return true
}

func (s *Session) reply(ctx context.Context, e event.Outbound) {
	if err := s.conn.Send(ctx, e); err != nil {
		s.log.Warn("Reply failed", "type", e.Type, "error", err)
	}
}
