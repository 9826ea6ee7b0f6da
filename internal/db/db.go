// Package db は予約データと利用者データを保持するリレーショナルストアを提供します。
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

//go:embed migrations/sqlite3/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// DB は *sql.DB にドライバー名とプレースホルダー形式を合わせた SQL ビルダーを添えたものです。
type DB struct {
	*sql.DB
	Driver  string
	Builder sq.StatementBuilderType
}

// Open はストアを開き、未適用のマイグレーションを適用します。
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	dialect, placeholder, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}

	if err := migrate(ctx, conn, dialect, driver); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if driver == DriverSQLite {
		// SQLite の書き込みは直列化されるので接続は1本で足りる
		conn.SetMaxOpenConns(1)
		// インメモリDBでは journal_mode が効かないため失敗は無視する
		_, _ = conn.ExecContext(ctx, `PRAGMA journal_mode=WAL`)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(25)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	return &DB{
		DB:      conn,
		Driver:  driver,
		Builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}, nil
}

func dialectFor(driver string) (goose.Dialect, sq.PlaceholderFormat, error) {
	switch driver {
	case DriverSQLite:
		return goose.DialectSQLite3, sq.Question, nil
	case DriverPostgres:
		return goose.DialectPostgres, sq.Dollar, nil
	default:
		return "", nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

// sqliteDSN は接続ごとに適用される PRAGMA を DSN に付け足します。
// 接続が作り直されても外部キー制約とビジータイムアウトが有効なままになります。
func sqliteDSN(dsn string) string {
	params := []string{"_foreign_keys=1", "_busy_timeout=5000"}
	for _, p := range params {
		key := p[:strings.Index(p, "=")+1]
		if strings.Contains(dsn, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + p
		} else {
			dsn += "?" + p
		}
	}
	return dsn
}

func migrate(ctx context.Context, conn *sql.DB, dialect goose.Dialect, driver string) error {
	fsys, err := fs.Sub(migrationsFS, "migrations/"+driver)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(dialect, conn, fsys)
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
