// Package main runs the broadcaster agent: the local control API plus the
// stream session state machine, signaling channel and per-viewer peer
// connections behind it.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/creatorlive/broadcaster/config"
	"github.com/creatorlive/broadcaster/internal/auth"
	"github.com/creatorlive/broadcaster/internal/control"
	"github.com/creatorlive/broadcaster/internal/events"
	"github.com/creatorlive/broadcaster/internal/media"
	"github.com/creatorlive/broadcaster/internal/middleware"
	"github.com/creatorlive/broadcaster/internal/models"
	"github.com/creatorlive/broadcaster/internal/registry"
	"github.com/creatorlive/broadcaster/internal/session"
	"github.com/creatorlive/broadcaster/pkg/redis"
	"github.com/creatorlive/broadcaster/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	registryClient := registry.New(
		cfg.Registry.BaseURL,
		cfg.Registry.Token,
		time.Duration(cfg.Registry.TimeoutSec)*time.Second,
		logger.Named("registry"),
	)

	dialer := &session.GatewayDialer{
		URL:       cfg.Signaling.URL,
		Purpose:   cfg.Signaling.Purpose,
		TokenFunc: gatewayTokenFunc(cfg),
		Logger:    logger.Named("signaling"),
	}

	ctrl := session.NewController(session.Options{
		Registry:              registryClient,
		Dialer:                dialer,
		Capturer:              &media.StaticCapturer{},
		Logger:                logger.Named("session"),
		GiftOverlayDuration:   cfg.Session.GiftOverlayDuration(),
		AnalyticsPollInterval: cfg.Session.AnalyticsPollInterval(),
	})

	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		cancel()
		if err != nil {
			logger.Warn("session mirror disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			mirror := events.NewMirror(rdb.Client, logger.Named("mirror"))
			ctrl.SetUpdateHandler(mirror.Handle)
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	api := router.Group("")
	api.Use(middleware.ControlToken(cfg.Server.ControlToken))
	control.NewHandler(ctrl, logger.Named("control")).Register(api)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("control api listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Unmount path: an active session is torn down unconditionally.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if snap := ctrl.Snapshot(); snap.Status == session.StatusWaiting || snap.Status == session.StatusLive {
		if err := ctrl.End(shutdownCtx); err != nil {
			logger.Warn("end session on shutdown", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("broadcaster stopped")
}

func gatewayTokenFunc(cfg *config.Config) func(sess *models.StreamSession) (string, error) {
	if cfg.Signaling.JWTSecret == "" {
		token := cfg.Registry.Token
		return func(*models.StreamSession) (string, error) { return token, nil }
	}
	svc := auth.NewGatewayTokenService(
		cfg.Signaling.JWTSecret,
		cfg.Signaling.TokenSubject,
		time.Duration(cfg.Signaling.TokenTTLMin)*time.Minute,
	)
	purpose := cfg.Signaling.Purpose
	return func(sess *models.StreamSession) (string, error) {
		return svc.Mint(sess.SessionID, purpose)
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
