package main

import (
	"log"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/room-booking/internal/auth"
	"github.com/yourusername/room-booking/internal/config"
	"github.com/yourusername/room-booking/internal/db"
)

// setupTokenStore は SESSION_REDIS_URL があれば Redis、なければ DB の sessions テーブルを使います。
func setupTokenStore(cfg *config.Config, database *db.DB) (auth.TokenStore, func(), error) {
	if cfg.SessionRedisURL == "" {
		return auth.NewSQLTokenStore(database), func() {}, nil
	}

	opt, err := redis.ParseURL(cfg.SessionRedisURL)
	if err != nil {
		return nil, nil, err
	}
	redisClient := redis.NewClient(opt)
	log.Printf("Using redis session store at %s", opt.Addr)

	return auth.NewRedisTokenStore(redisClient), func() {
		if err := redisClient.Close(); err != nil {
			log.Printf("failed to close redis client: %v", err)
		}
	}, nil
}
