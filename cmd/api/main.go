// Package main は教室借用アプリのサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/room-booking/internal/auth"
	"github.com/yourusername/room-booking/internal/bookings"
	"github.com/yourusername/room-booking/internal/config"
	"github.com/yourusername/room-booking/internal/db"
	"github.com/yourusername/room-booking/internal/users"
	"github.com/yourusername/room-booking/internal/web"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	logger := log.Default()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	database, err := db.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	tokens, closeTokens, err := setupTokenStore(cfg, database)
	if err != nil {
		log.Fatalf("Failed to set up session store: %v", err)
	}
	defer closeTokens()

	userStore := users.NewStore(database, cfg.BcryptCost)
	authManager := auth.NewManager(cfg, tokens, userStore, logger)

	router, err := web.NewRouter(web.Options{
		Config:   cfg,
		Auth:     authManager,
		Users:    userStore,
		Bookings: bookings.NewStore(database),
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	// 誰でも叩けるヘルスチェック
	router.GET("/health", handleHealth(database))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s (mode: %s, db: %s)", srv.Addr, cfg.GinMode, cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 終了シグナルを待つ
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(database *db.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := database.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unavailable",
				"service": "room-booking",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "room-booking",
			"version": "0.1.0",
		})
	}
}
