package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/room-booking/internal/config"
	"github.com/yourusername/room-booking/internal/testutil"
	"github.com/yourusername/room-booking/internal/users"
)

type stubCredentials struct {
	byStudentID map[string]*users.User
}

func (s *stubCredentials) FindByStudentID(ctx context.Context, studentID string) (*users.User, error) {
	return s.byStudentID[studentID], nil
}

func (s *stubCredentials) GetByID(ctx context.Context, id int64) (*users.User, error) {
	for _, u := range s.byStudentID {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

type memoryTokens struct {
	tokens map[string]int64
}

func (m *memoryTokens) Create(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	m.tokens[token] = userID
	return nil
}

func (m *memoryTokens) Lookup(ctx context.Context, token string) (int64, bool, error) {
	id, ok := m.tokens[token]
	return id, ok, nil
}

func (m *memoryTokens) Delete(ctx context.Context, token string) error {
	delete(m.tokens, token)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		BcryptCost:           bcrypt.MinCost,
		SessionMaxAgeMinutes: 60,
		SessionIdleMinutes:   30,
	}
}

func newTestManager(t *testing.T) (*Manager, *memoryTokens) {
	t.Helper()
	hash, err := users.HashPassword("pw1", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	other, err := users.HashPassword("pw2", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	creds := &stubCredentials{byStudentID: map[string]*users.User{
		"A100": {ID: 1, Name: "Alice", StudentID: "A100", PasswordHash: hash},
		"E900": {ID: 2, Name: "Eve", StudentID: "E900", PasswordHash: other},
	}}
	tokens := &memoryTokens{tokens: map[string]int64{}}
	return NewManager(testConfig(), tokens, creds, nil), tokens
}

func newTestRouter(m *Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(sessions.Sessions(SessionCookieName, cookie.NewStore([]byte("test-secret"))))

	router.POST("/login", func(c *gin.Context) {
		user, err := m.Authenticate(c, c.PostForm("student_id"), c.PostForm("password"))
		var locked *LockedError
		switch {
		case errors.As(err, &locked):
			c.String(http.StatusTooManyRequests, "locked")
			return
		case errors.Is(err, ErrInvalidCredentials):
			c.String(http.StatusUnauthorized, "invalid")
			return
		case err != nil:
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		if err := m.StartSession(c, user); err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		c.String(http.StatusOK, "ok")
	})
	router.GET("/logout", m.RequireLogin("/login"), func(c *gin.Context) {
		if err := m.EndSession(c, "bye"); err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		c.Redirect(http.StatusFound, "/login")
	})
	router.GET("/notices", func(c *gin.Context) {
		c.String(http.StatusOK, strings.Join(Notices(c), "|"))
	})
	router.GET("/private", m.RequireLogin("/login"), func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.String(http.StatusOK, user.StudentID)
	})
	router.POST("/private", m.RequireLogin("/login"), m.VerifyCSRF(), func(c *gin.Context) {
		c.String(http.StatusOK, "posted")
	})
	return router
}

func login(cl *testutil.Client, studentID, password string) *httptest.ResponseRecorder {
	return cl.PostForm("/login", url.Values{"student_id": {studentID}, "password": {password}})
}

func TestRequireLoginRedirectsAnonymous(t *testing.T) {
	m, _ := newTestManager(t)
	cl := testutil.NewClient(newTestRouter(m))

	rec := cl.Get("/private")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %s", rec.Code, rec.Header().Get("Location"))
	}

	notices := cl.Get("/notices").Body.String()
	if notices != noticeLoginRequired {
		t.Fatalf("unexpected notices: %q", notices)
	}
	if again := cl.Get("/notices").Body.String(); again != "" {
		t.Fatalf("notices should be shown once, got %q", again)
	}
}

func TestLoginResolvesCurrentUser(t *testing.T) {
	m, tokens := newTestManager(t)
	cl := testutil.NewClient(newTestRouter(m))

	rec := login(cl, "A100", "pw1")
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(csrfHeader) == "" {
		t.Fatal("expected CSRF token header on login")
	}
	if len(tokens.tokens) != 1 {
		t.Fatalf("expected one stored token, got %d", len(tokens.tokens))
	}

	rec = cl.Get("/private")
	if rec.Code != http.StatusOK || rec.Body.String() != "A100" {
		t.Fatalf("unexpected private response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestWrongPasswordStaysAnonymous(t *testing.T) {
	m, tokens := newTestManager(t)
	cl := testutil.NewClient(newTestRouter(m))

	for _, tc := range []struct{ studentID, password string }{
		{"A100", "wrong"},
		{"A100", ""},
		{"B200", "pw1"},
	} {
		if rec := login(cl, tc.studentID, tc.password); rec.Code != http.StatusUnauthorized {
			t.Fatalf("login(%s,%s) = %d, want 401", tc.studentID, tc.password, rec.Code)
		}
	}
	if len(tokens.tokens) != 0 {
		t.Fatalf("no token should be issued, got %d", len(tokens.tokens))
	}
	if rec := cl.Get("/private"); rec.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
}

func TestLoginLockAfterRepeatedFailures(t *testing.T) {
	m, _ := newTestManager(t)
	now := time.Now()
	m.now = func() time.Time { return now }
	cl := testutil.NewClient(newTestRouter(m))

	for i := 0; i < maxLoginAttempts; i++ {
		if rec := login(cl, "A100", "wrong"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: got %d", i, rec.Code)
		}
	}
	if rec := login(cl, "A100", "pw1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected lock, got %d", rec.Code)
	}

	now = now.Add(lockDuration + time.Second)
	if rec := login(cl, "A100", "pw1"); rec.Code != http.StatusOK {
		t.Fatalf("expected login after lock expiry, got %d", rec.Code)
	}
}

func TestOwnLoginDoesNotClearFailuresForOtherAccount(t *testing.T) {
	m, _ := newTestManager(t)
	cl := testutil.NewClient(newTestRouter(m))

	accepted := 0
	locked := false
rounds:
	for round := 0; round < 5; round++ {
		for i := 0; i < maxLoginAttempts-1; i++ {
			rec := login(cl, "A100", "wrong")
			if rec.Code == http.StatusTooManyRequests {
				locked = true
				break rounds
			}
			accepted++
		}
		if rec := login(cl, "E900", "pw2"); rec.Code != http.StatusOK {
			t.Fatalf("round %d: own login = %d", round, rec.Code)
		}
	}

	if !locked {
		t.Fatalf("expected lock, %d wrong attempts were accepted", accepted)
	}
	if accepted != maxLoginAttempts {
		t.Fatalf("accepted %d wrong attempts before lock, want %d", accepted, maxLoginAttempts)
	}
}

func TestSuccessfulLoginClearsOwnFailures(t *testing.T) {
	m, _ := newTestManager(t)
	cl := testutil.NewClient(newTestRouter(m))

	for round := 0; round < 2; round++ {
		for i := 0; i < maxLoginAttempts-1; i++ {
			if rec := login(cl, "A100", "wrong"); rec.Code != http.StatusUnauthorized {
				t.Fatalf("round %d attempt %d: got %d", round, i, rec.Code)
			}
		}
		if rec := login(cl, "A100", "pw1"); rec.Code != http.StatusOK {
			t.Fatalf("round %d: login = %d", round, rec.Code)
		}
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	m, tokens := newTestManager(t)
	cl := testutil.NewClient(newTestRouter(m))

	if rec := login(cl, "A100", "pw1"); rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d", rec.Code)
	}
	stale := *cl.Cookies[SessionCookieName]

	rec := cl.Get("/logout")
	if rec.Code != http.StatusFound {
		t.Fatalf("logout: %d", rec.Code)
	}
	if len(tokens.tokens) != 0 {
		t.Fatal("token should be deleted on logout")
	}
	if notices := cl.Get("/notices").Body.String(); notices != "bye" {
		t.Fatalf("unexpected logout notice: %q", notices)
	}

	// ログアウト前の Cookie を再送しても認証されない
	replay := testutil.NewClient(cl.Handler)
	replay.Cookies[SessionCookieName] = &stale
	if rec := replay.Get("/private"); rec.Code != http.StatusFound {
		t.Fatalf("stale cookie should redirect, got %d", rec.Code)
	}
}

func TestIdleTimeoutExpiresSession(t *testing.T) {
	m, tokens := newTestManager(t)
	now := time.Now()
	m.now = func() time.Time { return now }
	cl := testutil.NewClient(newTestRouter(m))

	if rec := login(cl, "A100", "pw1"); rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d", rec.Code)
	}

	now = now.Add(31 * time.Minute)
	rec := cl.Get("/private")
	if rec.Code != http.StatusFound {
		t.Fatalf("expected redirect after idle timeout, got %d", rec.Code)
	}
	if len(tokens.tokens) != 0 {
		t.Fatal("expired token should be revoked")
	}
	if notices := cl.Get("/notices").Body.String(); notices != noticeSessionExpired {
		t.Fatalf("unexpected notice: %q", notices)
	}
}

func TestVerifyCSRF(t *testing.T) {
	m, _ := newTestManager(t)
	cl := testutil.NewClient(newTestRouter(m))

	rec := login(cl, "A100", "pw1")
	token := rec.Header().Get(csrfHeader)

	if rec := cl.Do(http.MethodPost, "/private", url.Values{}, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("missing token: got %d", rec.Code)
	}
	if rec := cl.Do(http.MethodPost, "/private", url.Values{csrfFormField: {"bogus"}}, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("wrong token: got %d", rec.Code)
	}
	if rec := cl.Do(http.MethodPost, "/private", url.Values{csrfFormField: {token}}, nil); rec.Code != http.StatusOK {
		t.Fatalf("form token: got %d", rec.Code)
	}
	header := http.Header{csrfHeader: {token}}
	if rec := cl.Do(http.MethodPost, "/private", url.Values{}, header); rec.Code != http.StatusOK {
		t.Fatalf("header token: got %d", rec.Code)
	}
}

func TestAbsoluteLifetimeExpiresActiveSession(t *testing.T) {
	m, tokens := newTestManager(t)
	now := time.Now()
	m.now = func() time.Time { return now }
	cl := testutil.NewClient(newTestRouter(m))

	if rec := login(cl, "A100", "pw1"); rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d", rec.Code)
	}

	// 無操作タイムアウトより短い間隔でアクセスし続ける
	for i := 0; i < 2; i++ {
		now = now.Add(25 * time.Minute)
		if rec := cl.Get("/private"); rec.Code != http.StatusOK {
			t.Fatalf("access %d: got %d", i, rec.Code)
		}
	}

	now = now.Add(25 * time.Minute)
	if rec := cl.Get("/private"); rec.Code != http.StatusFound {
		t.Fatalf("expected redirect past max lifetime, got %d", rec.Code)
	}
	if len(tokens.tokens) != 0 {
		t.Fatal("expired token should be revoked")
	}
	if notices := cl.Get("/notices").Body.String(); notices != noticeSessionExpired {
		t.Fatalf("unexpected notice: %q", notices)
	}
}
