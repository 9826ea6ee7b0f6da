package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
)

type sessionRecord struct {
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RedisTokenStore はセッショントークンを Redis に保存します。有効期限は TTL で管理します。
type RedisTokenStore struct {
	rdb *redis.Client
}

// NewRedisTokenStore は RedisTokenStore を作成します。
func NewRedisTokenStore(rdb *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{rdb: rdb}
}

// Create はトークンを保存します。
func (s *RedisTokenStore) Create(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}
	payload, err := json.Marshal(&sessionRecord{
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt.UTC(),
	})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKey(token), payload, ttl).Err()
}

// Lookup はトークンに対応する利用者IDを返します。
func (s *RedisTokenStore) Lookup(ctx context.Context, token string) (int64, bool, error) {
	data, err := s.rdb.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	var record sessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return 0, false, err
	}
	return record.UserID, true, nil
}

// Delete はトークンを削除します。
func (s *RedisTokenStore) Delete(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, sessionKey(token)).Err()
}

func sessionKey(token string) string {
	return sessionKeyPrefix + token
}
