package testutil

import (
	"context"
	"testing"

	"github.com/yourusername/room-booking/internal/db"
)

// OpenInMemoryDB はマイグレーション適用済みのインメモリ SQLite を開きます。
// name はテストごとに変えてください。同名だと共有キャッシュ上で同じDBになります。
func OpenInMemoryDB(t *testing.T, name string) *db.DB {
	t.Helper()
	d, err := db.Open(context.Background(), db.DriverSQLite, "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}
