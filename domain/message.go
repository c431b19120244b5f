package domain

import (
	"strings"
	"time"
)

// Message is a direct message between two users.
// IDs are time-ordered, so sorting by ID gives persistence order.
// Seen goes from false to true at most once.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	Seen      bool      `json:"seen"`
}

// Between reports whether the message belongs to the unordered pair {a, b}.
func (m Message) Between(a, b string) bool {
	return (m.From == a && m.To == b) || (m.From == b && m.To == a)
}

// PairKey returns a key identical for {a, b} and {b, a}.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func IsBlank(body string) bool {
	return strings.TrimSpace(body) == ""
}
