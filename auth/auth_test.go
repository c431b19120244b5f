package auth

import (
	"chat-relay/errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	secret := "pw1"

	hash, err := HashSecret(secret)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := CompareSecret(secret, hash)
	req.NoError(err)
	req.True(match)

	// Wrong secret
	match, err = CompareSecret("pw2", hash)
	req.NoError(err)
	req.False(match)
}

func TestCompare_InvalidHash(t *testing.T) {
	_, err := CompareSecret("pw1", "plain-text")
	require.Error(t, err)
}

func TestRegistrationValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr bool
	}{
		{"Valid request", RegisterRequest{"alice", "pw1"}, false},
		{"Missing username", RegisterRequest{"", "pw1"}, true},
		{"Username with separator", RegisterRequest{"al:ice", "pw1"}, true},
		{"Username too short", RegisterRequest{"al", "pw1"}, true},
		{"Secret too short", RegisterRequest{"alice", "pw"}, true},
		{"Secret too long", RegisterRequest{"alice", strings.Repeat("a", 73)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegister(tt.req)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestToken_RoundTrip(t *testing.T) {
	req := require.New(t)
	manager := NewTokenManager("a-test-secret", time.Hour)

	token, err := manager.Generate("alice")
	req.NoError(err)

	username, err := manager.Validate(token)
	req.NoError(err)
	req.Equal("alice", username)
}

func TestToken_Rejected(t *testing.T) {
	req := require.New(t)
	manager := NewTokenManager("a-test-secret", time.Hour)
	expired := NewTokenManager("a-test-secret", -time.Minute)
	other := NewTokenManager("another-secret", time.Hour)

	token, err := expired.Generate("alice")
	req.NoError(err)
	_, err = manager.Validate(token)
	req.ErrorIs(err, errors.ErrInvalidToken)

	token, err = other.Generate("alice")
	req.NoError(err)
	_, err = manager.Validate(token)
	req.ErrorIs(err, errors.ErrInvalidToken)

	_, err = manager.Validate("garbage")
	req.ErrorIs(err, errors.ErrInvalidToken)
}

// BenchmarkHashSecret measures the CPU/RAM cost of one registration
func BenchmarkHashSecret(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = HashSecret("A-very-long-and-complex-secret-for-bench-123!")
	}
}
