package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "GIN_MODE", "SESSION_SECRET", "SESSION_REDIS_URL",
		"SESSION_MAX_AGE_MINUTES", "SESSION_IDLE_MINUTES",
		"DB_DRIVER", "DB_DSN", "BCRYPT_COST", "CORS_ALLOWED_ORIGINS", "CONFIG_FILE",
	} {
		t.Setenv(key, "")
	}
	// .env.local の読み込みを避けるため空ディレクトリで実行する
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "8080" || cfg.DBDriver != "sqlite3" || cfg.DBDSN != "bookings.db" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SessionSecret == "" {
		t.Fatal("expected development session secret in debug mode")
	}
	if cfg.SessionIdleMinutes != 30 || cfg.SessionMaxAgeMinutes != 720 {
		t.Fatalf("unexpected session lifetimes: %+v", cfg)
	}
}

func TestLoadReleaseRequiresSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("GIN_MODE", "release")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when SESSION_SECRET is not set in release mode")
	}

	t.Setenv("SESSION_SECRET", "short")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for short SESSION_SECRET")
	}

	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")
	if _, err := Load(); err != nil {
		t.Fatalf("Load with secret set: %v", err)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_DRIVER", "mysql")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("port: \"9090\"\ndb_driver: postgres\ndb_dsn: postgres://localhost/rooms\nsession_idle_minutes: 5\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("env should override yaml port, got %s", cfg.Port)
	}
	if cfg.DBDriver != "postgres" || cfg.DBDSN != "postgres://localhost/rooms" {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	if cfg.SessionIdleMinutes != 5 {
		t.Fatalf("SessionIdleMinutes = %d, want 5", cfg.SessionIdleMinutes)
	}
	if cfg.SessionMaxAgeMinutes != 720 {
		t.Fatalf("unset yaml key should keep default, got %d", cfg.SessionMaxAgeMinutes)
	}
}
