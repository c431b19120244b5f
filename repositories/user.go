package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

const userPrefix = "user:"

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

// DiskUser is the persisted shape of a domain.User.
type DiskUser struct {
	Username        string   `json:"username"`
	SecretHash      string   `json:"secret_hash"`
	Friends         []string `json:"friends"`
	PendingRequests []string `json:"pending_requests"`
	CreatedAt       int64    `json:"created_at"`
}

func userKey(username string) []byte {
	return []byte(userPrefix + username)
}

// GetUser loads the whole record of a user.
func (u UserRepository) GetUser(username string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			user, err = DecodeUser(val)
			return err
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, fmt.Errorf("%w: %s", errors.ErrUnknownUser, username)
	}
	return user, err
}

// PutUser replaces the whole record of a user.
func (u UserRepository) PutUser(user domain.User) error {
	bytes, err := json.Marshal(fromUser(user))
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.Username), bytes)
	})
}

// ListUsers scans every user record in key order.
func (u UserRepository) ListUsers() ([]domain.User, error) {
	var users []domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		prefix := []byte(userPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				user, err := DecodeUser(val)
				if err != nil {
					return err
				}
				users = append(users, user)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return users, err
}

func DecodeUser(val []byte) (domain.User, error) {
	var disk DiskUser
	if err := json.Unmarshal(val, &disk); err != nil {
		return domain.User{}, fmt.Errorf("unmarshal failed: %w", err)
	}
	return toUser(disk), nil
}

func fromUser(user domain.User) DiskUser {
	return DiskUser{
		Username:        user.Username,
		SecretHash:      user.SecretHash,
		Friends:         user.Friends.Sorted(),
		PendingRequests: user.PendingRequests.Sorted(),
		CreatedAt:       user.CreatedAt.UnixNano(),
	}
}

func toUser(disk DiskUser) domain.User {
	return domain.User{
		Username:        disk.Username,
		SecretHash:      disk.SecretHash,
		Friends:         domain.NewSet(disk.Friends...),
		PendingRequests: domain.NewSet(lo.Uniq(disk.PendingRequests)...),
		CreatedAt:       time.Unix(0, disk.CreatedAt).UTC(),
	}
}
