// Package web は画面のルーティングとハンドラーを提供します。
package web

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/room-booking/internal/auth"
	"github.com/yourusername/room-booking/internal/bookings"
	"github.com/yourusername/room-booking/internal/db"
	"github.com/yourusername/room-booking/internal/users"
)

const (
	noticeRegistered     = "登録が完了しました。ログインしてください。"
	noticeLoggedIn       = "ログインしました。"
	noticeLoggedOut      = "ログアウトしました。"
	noticeBadCredentials = "学籍番号またはパスワードが正しくありません。"
	noticeLocked         = "ログイン試行回数が上限に達しました。しばらく待ってから再度お試しください。"
	noticePasswordLong   = "パスワードは72バイト以内で入力してください。"
	noticeInternal       = "サーバー内部でエラーが発生しました。"
	noticeCanceled       = "リクエストがキャンセルされました。"
)

// Registrar は利用者登録を行うストアが実装します。
type Registrar interface {
	Register(ctx context.Context, in users.NewUser) (*users.User, error)
}

// BookingStore は借用記録の作成と一覧を提供します。
type BookingStore interface {
	Create(ctx context.Context, in bookings.NewBooking) (*bookings.Booking, error)
	ListForStudent(ctx context.Context, studentID string) ([]bookings.Booking, error)
}

// Handler は各画面のハンドラーをまとめた構造体です。
type Handler struct {
	users    Registrar
	bookings BookingStore
	auth     *auth.Manager
	logger   *log.Logger
}

// pageData はテンプレートに渡す表示用データです。
type pageData struct {
	Notices   []string
	CSRFToken string
	User      *users.User
	Bookings  []bookings.Booking
	Form      map[string]string
}

// RegisterPage は GET /register のハンドラーです。
func (h *Handler) RegisterPage(c *gin.Context) {
	c.HTML(http.StatusOK, "register.html", pageData{Notices: auth.Notices(c)})
}

// Register は POST /register のハンドラーです。
func (h *Handler) Register(c *gin.Context) {
	in := users.NewUser{
		Name:      formValue(c, "name"),
		StudentID: formValue(c, "student_id"),
		Password:  formValue(c, "password"),
	}

	if _, err := h.users.Register(c.Request.Context(), in); err != nil {
		h.respondWithError(c, "register.html", pageData{
			Form: map[string]string{"name": in.Name.V, "student_id": in.StudentID.V},
		}, err)
		return
	}

	if err := auth.AddNotice(c, noticeRegistered); err != nil {
		h.logger.Printf("failed to save notice: %v", err)
	}
	c.Redirect(http.StatusFound, "/login")
}

// LoginPage は GET /login のハンドラーです。
func (h *Handler) LoginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", pageData{Notices: auth.Notices(c)})
}

// Login は POST /login のハンドラーです。失敗時は状態を変えずにフォームを再表示します。
func (h *Handler) Login(c *gin.Context) {
	studentID := c.PostForm("student_id")
	user, err := h.auth.Authenticate(c, studentID, c.PostForm("password"))
	if err != nil {
		h.respondWithError(c, "login.html", pageData{
			Form: map[string]string{"student_id": studentID},
		}, err)
		return
	}

	if err := h.auth.StartSession(c, user, noticeLoggedIn); err != nil {
		h.respondWithError(c, "login.html", pageData{}, err)
		return
	}
	h.logger.Printf("login: student_id=%s", user.StudentID)
	c.Redirect(http.StatusFound, "/")
}

// Logout は GET /logout のハンドラーです。
func (h *Handler) Logout(c *gin.Context) {
	if err := h.auth.EndSession(c, noticeLoggedOut); err != nil {
		h.logger.Printf("failed to end session: %v", err)
		c.String(http.StatusInternalServerError, noticeInternal)
		return
	}
	c.Redirect(http.StatusFound, "/login")
}

// Home は GET / のハンドラーです。
func (h *Handler) Home(c *gin.Context) {
	data := h.homeData(c)
	if err := h.loadBookings(c, &data); err != nil {
		h.respondWithError(c, "index.html", data, err)
		return
	}
	c.HTML(http.StatusOK, "index.html", data)
}

// CreateBooking は POST / のハンドラーです。作成後は一覧を再表示します。
func (h *Handler) CreateBooking(c *gin.Context) {
	in := bookings.NewBooking{
		Name:      formValue(c, "name"),
		StudentID: formValue(c, "student_id"),
		Classroom: formValue(c, "classroom"),
		Date:      formValue(c, "date"),
	}

	data := h.homeData(c)
	_, createErr := h.bookings.Create(c.Request.Context(), in)
	if err := h.loadBookings(c, &data); err != nil {
		h.respondWithError(c, "index.html", data, err)
		return
	}
	if createErr != nil {
		data.Form["classroom"] = in.Classroom.V
		data.Form["date"] = in.Date.V
		h.respondWithError(c, "index.html", data, createErr)
		return
	}
	c.HTML(http.StatusOK, "index.html", data)
}

func (h *Handler) homeData(c *gin.Context) pageData {
	user, _ := auth.CurrentUser(c)
	return pageData{
		Notices:   auth.Notices(c),
		CSRFToken: auth.CSRFToken(c),
		User:      user,
		Form:      map[string]string{"name": user.Name, "student_id": user.StudentID},
	}
}

// 一覧はフォームの学籍番号ではなくセッションの利用者で引く
func (h *Handler) loadBookings(c *gin.Context, data *pageData) error {
	list, err := h.bookings.ListForStudent(c.Request.Context(), data.User.StudentID)
	if err != nil {
		return err
	}
	data.Bookings = list
	return nil
}

func (h *Handler) respondWithError(c *gin.Context, page string, data pageData, err error) {
	var (
		dbErr  *db.Error
		locked *auth.LockedError
	)
	status := http.StatusInternalServerError
	notice := noticeInternal

	switch {
	case errors.As(err, &dbErr):
		status = http.StatusBadRequest
		if dbErr.Code == db.CodeDuplicate {
			status = http.StatusConflict
		}
		notice = dbErr.Message
	case errors.Is(err, users.ErrPasswordTooLong):
		status = http.StatusBadRequest
		notice = noticePasswordLong
	case errors.As(err, &locked):
		status = http.StatusTooManyRequests
		notice = noticeLocked
		c.Header("Retry-After", strconv.Itoa(int(locked.RetryAfter.Seconds())+1))
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusOK
		notice = noticeBadCredentials
	case errors.Is(err, context.Canceled):
		status = http.StatusRequestTimeout
		notice = noticeCanceled
	default:
		h.logger.Printf("request failed: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}

	data.Notices = append(data.Notices, notice)
	c.HTML(status, page, data)
}

// formValue は項目が送られていなければ NULL として扱います。
func formValue(c *gin.Context, key string) sql.Null[string] {
	v, ok := c.GetPostForm(key)
	return sql.Null[string]{V: v, Valid: ok}
}
