// Package domain contains core concepts of the presence and messaging system.
// No runtime, network, or storage logic should be added here.
package domain

import "time"

// User is the whole persisted record of an account.
// Friends is symmetric across records and never overlaps PendingRequests for the same pair.
type User struct {
	Username        string
	SecretHash      string
	Friends         Set
	PendingRequests Set // usernames that asked this user for friendship
	CreatedAt       time.Time
}

func NewUser(username, secretHash string, createdAt time.Time) User {
	return User{
		Username:        username,
		SecretHash:      secretHash,
		Friends:         NewSet(),
		PendingRequests: NewSet(),
		CreatedAt:       createdAt,
	}
}

// Clone returns a copy whose sets can be changed independently.
func (u User) Clone() User {
	u.Friends = u.Friends.Clone()
	u.PendingRequests = u.PendingRequests.Clone()
	return u
}

// FriendStatus is a friend annotated with its current presence.
type FriendStatus struct {
	Username string `json:"username"`
	Online   bool   `json:"online"`
}
