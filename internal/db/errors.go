package db

import (
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	CodeDuplicate    = "DUPLICATE"
	CodeMissingField = "MISSING_FIELD"
	CodeTooLong      = "TOO_LONG"
)

// Error はストアが書き込みを拒否した理由を利用者向けメッセージと共に保持します。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// IsCode は err が指定コードの *Error かどうかを返します。
func IsCode(err error, code string) bool {
	var dbErr *Error
	return errors.As(err, &dbErr) && dbErr.Code == code
}

// Translate は一意制約・NOT NULL 制約違反をドライバー固有のエラーから *Error に変換します。
// それ以外のエラーはそのまま返します。
func Translate(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return newError(CodeDuplicate, "同じ学籍番号はすでに登録されています。", err)
		case sqlite3.ErrConstraintNotNull:
			return newError(CodeMissingField, "必須項目が入力されていません。", err)
		}
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return newError(CodeDuplicate, "同じ学籍番号はすでに登録されています。", err)
		case "23502":
			return newError(CodeMissingField, "必須項目が入力されていません。", err)
		case "22001":
			return newError(CodeTooLong, "入力が長すぎます。", err)
		}
	}

	return err
}
