package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/room-booking/internal/users"
)

const (
	noticeLoginRequired  = "このページを表示するにはログインしてください。"
	noticeSessionExpired = "セッションの有効期限が切れました。再度ログインしてください。"
)

// RequireLogin はセッションを検証するミドルウェアを返します。
// 未ログインの場合は loginPath へリダイレクトし、後続のハンドラーは実行しません。
func (m *Manager) RequireLogin(loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(sessionKeyToken).(string)
		if token == "" {
			rejectToLogin(c, loginPath, noticeLoginRequired)
			return
		}

		now := m.now()
		issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
		lastActive := readUnix(session.Get(sessionKeyLastActive))

		if issuedAt.IsZero() || now.Sub(issuedAt) > m.maxLifetime ||
			lastActive.IsZero() || now.Sub(lastActive) > m.idleTimeout {
			if err := m.tokens.Delete(c.Request.Context(), token); err != nil {
				m.logger.Printf("failed to revoke expired session: %v", err)
			}
			rejectToLogin(c, loginPath, noticeSessionExpired)
			return
		}

		userID, ok, err := m.tokens.Lookup(c.Request.Context(), token)
		if err != nil {
			m.logger.Printf("failed to resolve session token: %v", err)
			c.String(http.StatusInternalServerError, "セッションの確認に失敗しました。")
			c.Abort()
			return
		}
		if !ok {
			rejectToLogin(c, loginPath, noticeLoginRequired)
			return
		}

		// 毎リクエスト最新の利用者情報を読み込む
		user, err := m.creds.GetByID(c.Request.Context(), userID)
		if err != nil {
			m.logger.Printf("failed to load user id=%d: %v", userID, err)
			c.String(http.StatusInternalServerError, "利用者情報の取得に失敗しました。")
			c.Abort()
			return
		}
		if user == nil {
			_ = m.tokens.Delete(c.Request.Context(), token)
			rejectToLogin(c, loginPath, noticeLoginRequired)
			return
		}

		session.Set(sessionKeyLastActive, now.Unix())
		if err := session.Save(); err != nil {
			m.logger.Printf("failed to refresh session: %v", err)
		}
		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// VerifyCSRF は X-CSRF-Token ヘッダーまたは csrf_token フォーム項目を検証するミドルウェアです。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		session := sessions.Default(c)
		expected, ok := session.Get(sessionKeyCSRF).(string)
		if !ok || expected == "" {
			c.String(http.StatusForbidden, "CSRF トークンが設定されていません。")
			c.Abort()
			return
		}

		received := c.GetHeader(csrfHeader)
		if received == "" {
			received = c.PostForm(csrfFormField)
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			c.String(http.StatusForbidden, "CSRF トークンが一致しません。")
			c.Abort()
			return
		}

		c.Next()
	}
}

// CurrentUser は RequireLogin が解決したリクエスト中の利用者を返します。
func CurrentUser(c *gin.Context) (*users.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*users.User)
	return user, ok && user != nil
}

// CSRFToken はフォームに埋め込む CSRF トークンを返します。
func CSRFToken(c *gin.Context) string {
	token, _ := sessions.Default(c).Get(sessionKeyCSRF).(string)
	return token
}

func rejectToLogin(c *gin.Context, loginPath, notice string) {
	session := sessions.Default(c)
	session.Clear()
	session.AddFlash(notice)
	_ = session.Save()
	c.Redirect(http.StatusFound, loginPath)
	c.Abort()
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
