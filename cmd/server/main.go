package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dom/faq-chat-web/internal/api"
	"github.com/dom/faq-chat-web/internal/config"
	"github.com/dom/faq-chat-web/internal/inference"
	"github.com/dom/faq-chat-web/internal/logger"
	"github.com/dom/faq-chat-web/internal/ratelimit"
	"github.com/dom/faq-chat-web/internal/repository/postgres"
	"github.com/dom/faq-chat-web/internal/service"
	"github.com/dom/faq-chat-web/internal/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("", false).Fatal("failed to load config", zap.Error(err))
	}

	log := logger.New(cfg.LogFilePath, cfg.IsProduction())
	defer log.Sync()

	if cfg.AuthSecret == "" {
		log.Warn("AUTH_SECRET is not set; token operations will fail")
	}

	// Initialize database
	dbLogLevel := gormLogger.Warn
	if cfg.IsProduction() {
		dbLogLevel = gormLogger.Error
	}
	db, err := postgres.NewConnection(cfg.DatabaseURL, dbLogLevel)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Initialize repositories
	repos := postgres.NewRepositories(db)

	// Rate limiter: Redis when configured, otherwise in process
	limiter := newLimiter(cfg, log)

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()

	// Initialize services
	upstream := inference.NewClient(cfg.InferenceBaseURL, cfg.TitleTimeout)
	services := service.NewServices(repos, upstream, cfg, log)

	// Initialize router
	router := api.NewRouter(services, hub, limiter, cfg, log)

	// WriteTimeout stays zero: streamed replies are bounded by the
	// upstream idle timeout instead.
	srv := &http.Server{
		Addr:        "0.0.0.0:" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	services.Conversation.Wait()

	log.Info("server stopped")
}

func newLimiter(cfg *config.Config, log *zap.Logger) ratelimit.Limiter {
	if cfg.RedisURL == "" {
		log.Info("using in-process rate limiter")
		return ratelimit.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("invalid REDIS_URL", zap.Error(err))
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		// Requests still pass: the limiter fails open.
		log.Warn("redis ping failed", zap.Error(err))
	}
	return ratelimit.NewRedisLimiter(client, cfg.RateLimitPerMinute, time.Minute)
}
