package web

import (
	"embed"
	"html/template"
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/room-booking/internal/auth"
	"github.com/yourusername/room-booking/internal/config"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Options は NewRouter に渡す依存関係です。
type Options struct {
	Config   *config.Config
	Auth     *auth.Manager
	Users    Registrar
	Bookings BookingStore
	Logger   *log.Logger
}

// NewRouter はセッション・CORS・テンプレートを設定したルーターを返します。
func NewRouter(opts Options) (*gin.Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	cfg := opts.Config

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	router.SetHTMLTemplate(tmpl)

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   opts.Auth.MaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	if origins := splitOrigins(cfg.CORSAllowedOrigins); len(origins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{
			"Origin",
			"Content-Type",
			"Accept",
			"X-CSRF-Token",
		}
		corsConfig.ExposeHeaders = []string{"X-CSRF-Token"}
		router.Use(cors.New(corsConfig))
	}

	h := &Handler{
		users:    opts.Users,
		bookings: opts.Bookings,
		auth:     opts.Auth,
		logger:   logger,
	}

	// ログイン前の画面はセッション未生成なので CSRF 検証は不要
	router.GET("/register", h.RegisterPage)
	router.POST("/register", h.Register)
	router.GET("/login", h.LoginPage)
	router.POST("/login", h.Login)

	protected := router.Group("")
	protected.Use(opts.Auth.RequireLogin("/login"))
	{
		protected.GET("/logout", h.Logout)
		protected.GET("/", h.Home)
		protected.POST("/", opts.Auth.VerifyCSRF(), h.CreateBooking)
	}

	return router, nil
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
