// Package event defines the frames exchanged with a connection.
// Inbound frames are decoded lazily: Data is only unmarshalled once the
// session knows which payload the Type expects.
package event

import (
	"chat-relay/domain"
	"encoding/json"
	"time"
)

type Type string

// Inbound event types.
const (
	Register          Type = "register"
	Login             Type = "login"
	Resume            Type = "resume"
	Logout            Type = "logout"
	SendFriendRequest Type = "send_friend_request"
	AcceptRequest     Type = "accept_request"
	RejectRequest     Type = "reject_request"
	GetFriends        Type = "get_friends"
	GetRequests       Type = "get_requests"
	SendMessage       Type = "send_message"
	GetChatHistory    Type = "get_chat_history"
	MessageSeen       Type = "message_seen"
	Typing            Type = "typing"
	StopTyping        Type = "stop_typing"
)

// Outbound event types. MessageSeen, Typing and StopTyping are shared with inbound.
const (
	RegisterSuccess     Type = "register_success"
	RegisterError       Type = "register_error"
	LoginSuccess        Type = "login_success"
	LoginError          Type = "login_error"
	FriendRequestResult Type = "friend_request_result"
	LoadFriends         Type = "load_friends"
	LoadRequests        Type = "load_requests"
	NewMessage          Type = "new_message"
	ChatHistory         Type = "chat_history"
	UserOnline          Type = "user_online"
	UserOffline         Type = "user_offline"
	SessionReplaced     Type = "session_replaced"
	Error               Type = "error"
)

type Inbound struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Outbound struct {
	Type Type `json:"type"`
	Data any  `json:"data,omitempty"`
}

// Inbound payloads

type Credentials struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

type ResumePayload struct {
	Token string `json:"token"`
}

type ToPayload struct {
	To string `json:"to"`
}

type FromPayload struct {
	From string `json:"from"`
}

type SendMessagePayload struct {
	To        string    `json:"to"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

type HistoryPayload struct {
	Peer string `json:"peer"`
}

// SeenPayload acknowledges a message. Peer is the original sender as asserted by
// the acknowledger; it may be empty.
type SeenPayload struct {
	MessageID string `json:"messageId"`
	Peer      string `json:"peer,omitempty"`
}

// Outbound payloads

type ReasonPayload struct {
	Reason string `json:"reason"`
}

type LoginPayload struct {
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
}

type ResultPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type MessagePayload struct {
	Message domain.Message `json:"message"`
}

type MessageIDPayload struct {
	MessageID string `json:"messageId"`
}

type FromUserPayload struct {
	From string `json:"from"`
}

type UsernamePayload struct {
	Username string `json:"username"`
}

func NewRegisterSuccess() Outbound {
	return Outbound{Type: RegisterSuccess}
}

func NewRegisterError(reason string) Outbound {
	return Outbound{Type: RegisterError, Data: ReasonPayload{Reason: reason}}
}

func NewLoginSuccess(username, token string) Outbound {
	return Outbound{Type: LoginSuccess, Data: LoginPayload{Username: username, Token: token}}
}

func NewLoginError(reason string) Outbound {
	return Outbound{Type: LoginError, Data: ReasonPayload{Reason: reason}}
}

func NewFriendRequestResult(success bool, message string) Outbound {
	return Outbound{Type: FriendRequestResult, Data: ResultPayload{Success: success, Message: message}}
}

func NewLoadFriends(friends []domain.FriendStatus) Outbound {
	if friends == nil {
		friends = []domain.FriendStatus{}
	}
	return Outbound{Type: LoadFriends, Data: friends}
}

func NewLoadRequests(requests []string) Outbound {
	if requests == nil {
		requests = []string{}
	}
	return Outbound{Type: LoadRequests, Data: requests}
}

func NewNewMessage(message domain.Message) Outbound {
	return Outbound{Type: NewMessage, Data: MessagePayload{Message: message}}
}

func NewChatHistory(messages []domain.Message) Outbound {
	if messages == nil {
		messages = []domain.Message{}
	}
	return Outbound{Type: ChatHistory, Data: messages}
}

func NewMessageSeen(messageID string) Outbound {
	return Outbound{Type: MessageSeen, Data: MessageIDPayload{MessageID: messageID}}
}

func NewTyping(from string) Outbound {
	return Outbound{Type: Typing, Data: FromUserPayload{From: from}}
}

func NewStopTyping(from string) Outbound {
	return Outbound{Type: StopTyping, Data: FromUserPayload{From: from}}
}

func NewUserOnline(username string) Outbound {
	return Outbound{Type: UserOnline, Data: UsernamePayload{Username: username}}
}

func NewUserOffline(username string) Outbound {
	return Outbound{Type: UserOffline, Data: UsernamePayload{Username: username}}
}

func NewSessionReplaced() Outbound {
	return Outbound{Type: SessionReplaced}
}

func NewError(reason string) Outbound {
	return Outbound{Type: Error, Data: ReasonPayload{Reason: reason}}
}

// Decode unmarshals the payload of an inbound event.
// An absent payload decodes to the zero value.
func Decode[T any](in Inbound) (T, error) {
	var payload T
	if len(in.Data) == 0 || string(in.Data) == "null" {
		return payload, nil
	}
	err := json.Unmarshal(in.Data, &payload)
	return payload, err
}
