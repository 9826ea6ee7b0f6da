// Package bookings は教室の借用記録を保存・一覧します。
package bookings

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/yourusername/room-booking/internal/db"
)

// Booking は借用記録1件です。student_id は外部キーではなくフォームの値そのままです。
type Booking struct {
	ID        int64
	Name      string
	StudentID string
	Classroom string
	Date      string
}

// NewBooking は予約フォームの入力です。
type NewBooking struct {
	Name      sql.Null[string]
	StudentID sql.Null[string]
	Classroom sql.Null[string]
	Date      sql.Null[string]
}

// Store は bookings テーブルへのアクセスを提供します。
type Store struct {
	db *db.DB
}

// NewStore は Store を作成します。
func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

// Create は記録を無条件に追加します。教室・日付の形式や重複は検証しません。
func (s *Store) Create(ctx context.Context, in NewBooking) (*Booking, error) {
	query, args, err := s.db.Builder.
		Insert("bookings").
		Columns("name", "student_id", "classroom", "date").
		Values(in.Name, in.StudentID, in.Classroom, in.Date).
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

	return &Booking{
		ID:        id,
		Name:      in.Name.V,
		StudentID: in.StudentID.V,
		Classroom: in.Classroom.V,
		Date:      in.Date.V,
	}, nil
}

// ListForStudent は student_id が完全一致する記録を登録順に返します。
func (s *Store) ListForStudent(ctx context.Context, studentID string) ([]Booking, error) {
	query, args, err := s.db.Builder.
		Select("id", "name", "student_id", "classroom", "date").
		From("bookings").
		Where(sq.Eq{"student_id": studentID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.Name, &b.StudentID, &b.Classroom, &b.Date); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
