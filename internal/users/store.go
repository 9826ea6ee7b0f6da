// Package users は利用者（学生）アカウントの保存と認証情報の検証を提供します。
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/yourusername/room-booking/internal/db"
)

// User は登録済みの利用者です。student_id は一意で、ログインと予約の紐付けに使います。
type User struct {
	ID           int64
	Name         string
	StudentID    string
	PasswordHash string
}

// NewUser は登録フォームの入力です。フォームに無かった項目は Valid=false のまま渡します。
type NewUser struct {
	Name      sql.Null[string]
	StudentID sql.Null[string]
	Password  sql.Null[string]
}

// Store は users テーブルへのアクセスを提供します。
type Store struct {
	db   *db.DB
	cost int
}

// NewStore は Store を作成します。cost は bcrypt のコストです。
func NewStore(d *db.DB, cost int) *Store {
	return &Store{db: d, cost: cost}
}

// Register はパスワードをハッシュ化して利用者を1件追加します。
// 重複チェックは行わず、一意制約違反は db.CodeDuplicate の *db.Error になります。
func (s *Store) Register(ctx context.Context, in NewUser) (*User, error) {
	var hash sql.Null[string]
	if in.Password.Valid {
		hashed, err := HashPassword(in.Password.V, s.cost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		hash = sql.Null[string]{V: hashed, Valid: true}
	}

	query, args, err := s.db.Builder.
		Insert("users").
		Columns("name", "student_id", "password_hash").
		Values(in.Name, in.StudentID, hash).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return nil, db.Translate(err)
	}

	return &User{
		ID:           id,
		Name:         in.Name.V,
		StudentID:    in.StudentID.V,
		PasswordHash: hash.V,
	}, nil
}

// FindByStudentID は学籍番号で完全一致検索します。見つからない場合は (nil, nil) を返します。
func (s *Store) FindByStudentID(ctx context.Context, studentID string) (*User, error) {
	return s.findOne(ctx, sq.Eq{"student_id": studentID})
}

// GetByID は ID で利用者を取得します。見つからない場合は (nil, nil) を返します。
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.findOne(ctx, sq.Eq{"id": id})
}

func (s *Store) findOne(ctx context.Context, where sq.Eq) (*User, error) {
	query, args, err := s.db.Builder.
		Select("id", "name", "student_id", "password_hash").
		From("users").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var u User
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.Name, &u.StudentID, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
