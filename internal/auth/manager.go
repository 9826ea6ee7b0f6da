// Package auth は認証・認可機能を提供します。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/room-booking/internal/config"
	"github.com/yourusername/room-booking/internal/users"
)

const (
	SessionCookieName    = "rb_session"
	sessionKeyToken      = "session_token"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
	sessionKeyCSRF       = "csrf_token"

	csrfHeader    = "X-CSRF-Token"
	csrfFormField = "csrf_token"
)

var (
	loginWindow      = 15 * time.Minute
	lockDuration     = 10 * time.Minute
	maxLoginAttempts = 5
)

// ContextUserKey は、ハンドラー間でログイン済みユーザーを共有するためのキーです。
const ContextUserKey = "auth.user"

// ErrInvalidCredentials は学籍番号またはパスワードが一致しない場合のエラーです。
var ErrInvalidCredentials = errors.New("invalid student id or password")

// LockedError はログイン試行回数の上限に達している場合のエラーです。
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("too many login attempts, retry after %s", e.RetryAfter.Round(time.Second))
}

// Credentials はログインとセッション解決に使う利用者ストアです。
type Credentials interface {
	FindByStudentID(ctx context.Context, studentID string) (*users.User, error)
	GetByID(ctx context.Context, id int64) (*users.User, error)
}

// attemptState は IP ごとの失敗回数です。学籍番号別に数え、合計で判定します。
type attemptState struct {
	failures     map[string]int
	firstAttempt time.Time
	lockedUntil  time.Time
}

func (s *attemptState) total() int {
	n := 0
	for _, c := range s.failures {
		n += c
	}
	return n
}

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	tokens      TokenStore
	creds       Credentials
	logger      *log.Logger
	maxLifetime time.Duration
	idleTimeout time.Duration
	dummyHash   string
	now         func() time.Time

	lock     sync.Mutex
	attempts map[string]*attemptState
}

// NewManager は認証マネージャーを作成します。
func NewManager(cfg *config.Config, tokens TokenStore, creds Credentials, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	// 存在しない学籍番号でも bcrypt を1回通し、応答時間で登録有無が分からないようにする
	dummy, err := users.HashPassword("room-booking", cfg.BcryptCost)
	if err != nil {
		logger.Printf("failed to prepare dummy hash: %v", err)
	}
	return &Manager{
		tokens:      tokens,
		creds:       creds,
		logger:      logger,
		maxLifetime: time.Duration(cfg.SessionMaxAgeMinutes) * time.Minute,
		idleTimeout: time.Duration(cfg.SessionIdleMinutes) * time.Minute,
		dummyHash:   dummy,
		now:         time.Now,
		attempts:    make(map[string]*attemptState),
	}
}

// MaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func (m *Manager) MaxAgeSeconds() int {
	return int(m.maxLifetime.Seconds())
}

// Authenticate は学籍番号とパスワードを検証します。
// 失敗は ErrInvalidCredentials、ロック中は *LockedError を返し、セッションは変更しません。
func (m *Manager) Authenticate(c *gin.Context, studentID, password string) (*users.User, error) {
	ip := c.ClientIP()
	if retryAfter := m.checkLock(ip); retryAfter > 0 {
		return nil, &LockedError{RetryAfter: retryAfter}
	}

	user, err := m.creds.FindByStudentID(c.Request.Context(), studentID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		users.VerifyPassword(password, m.dummyHash)
		m.recordFailure(ip, studentID)
		return nil, ErrInvalidCredentials
	}
	if !users.VerifyPassword(password, user.PasswordHash) {
		m.recordFailure(ip, studentID)
		return nil, ErrInvalidCredentials
	}

	// 他の学籍番号に対する失敗は残す
	m.resetAttempts(ip, studentID)
	return user, nil
}

// StartSession はセッショントークンを発行してログイン状態にします。
// notices は次に表示するページへ持ち越すお知らせです。
func (m *Manager) StartSession(c *gin.Context, user *users.User, notices ...string) error {
	ctx := c.Request.Context()
	now := m.now()
	token := uuid.NewString()
	if err := m.tokens.Create(ctx, token, user.ID, now.Add(m.maxLifetime)); err != nil {
		return fmt.Errorf("failed to store session token: %w", err)
	}

	csrf, err := generateToken()
	if err != nil {
		_ = m.tokens.Delete(ctx, token)
		return fmt.Errorf("failed to generate csrf token: %w", err)
	}

	session := sessions.Default(c)
	session.Set(sessionKeyToken, token)
	session.Set(sessionKeyIssuedAt, now.Unix())
	session.Set(sessionKeyLastActive, now.Unix())
	session.Set(sessionKeyCSRF, csrf)
	for _, notice := range notices {
		session.AddFlash(notice)
	}

	if err := session.Save(); err != nil {
		_ = m.tokens.Delete(ctx, token)
		return fmt.Errorf("failed to save session: %w", err)
	}

	c.Header(csrfHeader, csrf)
	return nil
}

// EndSession はトークンを即時に失効させ、セッションを空にします。
func (m *Manager) EndSession(c *gin.Context, notices ...string) error {
	session := sessions.Default(c)
	if token, ok := session.Get(sessionKeyToken).(string); ok && token != "" {
		if err := m.tokens.Delete(c.Request.Context(), token); err != nil {
			return fmt.Errorf("failed to revoke session token: %w", err)
		}
	}
	session.Clear()
	for _, notice := range notices {
		session.AddFlash(notice)
	}
	return session.Save()
}

func (m *Manager) checkLock(ip string) time.Duration {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[ip]
	if !ok {
		return 0
	}
	now := m.now()
	if now.After(state.lockedUntil) {
		return 0
	}
	return state.lockedUntil.Sub(now)
}

func (m *Manager) recordFailure(ip, studentID string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	state, ok := m.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > loginWindow {
		state = &attemptState{failures: make(map[string]int), firstAttempt: now}
		m.attempts[ip] = state
	}

	state.failures[studentID]++
	if state.total() >= maxLoginAttempts {
		state.lockedUntil = now.Add(lockDuration)
		state.failures = make(map[string]int)
		state.firstAttempt = now
	}
}

func (m *Manager) resetAttempts(ip, studentID string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[ip]
	if !ok {
		return
	}
	delete(state.failures, studentID)
	if len(state.failures) == 0 && !m.now().Before(state.lockedUntil) {
		delete(m.attempts, ip)
	}
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
