package services

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/runtime"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"
)

var _ contract.Authenticator = (*AuthService)(nil)

// AuthService registers and verifies credentials against the Ledger.
// Secrets never reach the Ledger in clear, only their Argon2id encoding.
type AuthService struct {
	ledger contract.Ledger
	locker *runtime.KeyedLocker
	log    *slog.Logger
}

func NewAuthService(ledger contract.Ledger, locker *runtime.KeyedLocker, log *slog.Logger) *AuthService {
	return &AuthService{ledger: ledger, locker: locker, log: log}
}

func (s *AuthService) Register(username, secret string) error {
	// Validation runs before any expensive hashing
	if err := auth.ValidateRegister(auth.RegisterRequest{Username: username, Secret: secret}); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidCredentials, err)
	}

	unlock := s.locker.Lock(username)
	defer unlock()

	_, err := s.ledger.GetUser(username)
	switch {
	case err == nil:
		return errors.ErrUserAlreadyExists
	case !stderrors.Is(err, errors.ErrUnknownUser):
		return errors.Storage(err)
	}

	hash, err := auth.HashSecret(secret)
	if err != nil {
		return fmt.Errorf("hashing failed: %w", err)
	}
	if err = s.ledger.PutUser(domain.NewUser(username, hash, time.Now().UTC())); err != nil {
		return errors.Storage(err)
	}
	s.log.Info("User registered", "username", username)
	return nil
}

// Authenticate reports unknown users and wrong secrets with the same error,
// a client can't tell which usernames exist.
func (s *AuthService) Authenticate(username, secret string) error {
	user, err := s.ledger.GetUser(username)
	if stderrors.Is(err, errors.ErrUnknownUser) {
		return errors.ErrAuthenticationFailed
	}
	if err != nil {
		return errors.Storage(err)
	}
	match, err := auth.CompareSecret(secret, user.SecretHash)
	if err != nil {
		s.log.Warn("Unreadable secret hash", "username", username, "error", err)
		return errors.ErrAuthenticationFailed
	}
	if !match {
		return errors.ErrAuthenticationFailed
	}
	return nil
}
