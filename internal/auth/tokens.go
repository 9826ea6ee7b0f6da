package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/yourusername/room-booking/internal/db"
)

// TokenStore はサーバー側でセッショントークンと利用者IDの対応を保持します。
// Delete 後のトークンは Lookup で見つからないことを保証します。
type TokenStore interface {
	Create(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	Lookup(ctx context.Context, token string) (userID int64, ok bool, err error)
	Delete(ctx context.Context, token string) error
}

// SQLTokenStore は sessions テーブルにトークンを保存します。
type SQLTokenStore struct {
	db *db.DB
}

// NewSQLTokenStore は SQLTokenStore を作成します。
func NewSQLTokenStore(d *db.DB) *SQLTokenStore {
	return &SQLTokenStore{db: d}
}

// Create はトークンを保存します。
func (s *SQLTokenStore) Create(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	query, args, err := s.db.Builder.
		Insert("sessions").
		Columns("token", "user_id", "created_at", "expires_at").
		Values(token, userID, time.Now().UTC(), expiresAt.UTC()).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// Lookup はトークンに対応する利用者IDを返します。期限切れのトークンは削除して見つからない扱いにします。
func (s *SQLTokenStore) Lookup(ctx context.Context, token string) (int64, bool, error) {
	query, args, err := s.db.Builder.
		Select("user_id", "expires_at").
		From("sessions").
		Where(sq.Eq{"token": token}).
		ToSql()
	if err != nil {
		return 0, false, err
	}

	var (
		userID    int64
		expiresAt time.Time
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}

	if !time.Now().Before(expiresAt) {
		return 0, false, s.Delete(ctx, token)
	}
	return userID, true, nil
}

// Delete はトークンを削除します。存在しなくてもエラーにはしません。
func (s *SQLTokenStore) Delete(ctx context.Context, token string) error {
	query, args, err := s.db.Builder.
		Delete("sessions").
		Where(sq.Eq{"token": token}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}
