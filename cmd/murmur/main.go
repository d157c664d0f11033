package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alphabot-ai/murmur/internal/auth"
	"github.com/alphabot-ai/murmur/internal/config"
	httpapp "github.com/alphabot-ai/murmur/internal/http"
	"github.com/alphabot-ai/murmur/internal/rate"
	"github.com/alphabot-ai/murmur/internal/store/sqlite"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		logger.Fatalw("failed to open db", "err", err, "path", cfg.DBPath)
	}
	defer st.Close()

	limiter := rate.NewMemory()
	authSvc := auth.NewService(st, cfg.JWTSecret, cfg.TokenTTL, cfg.RefreshTTL)
	server := httpapp.NewServer(st, authSvc, limiter, cfg, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		logger.Infow("murmur listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server error", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}
