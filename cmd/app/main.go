package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tgwebapp/internal/config"
	"tgwebapp/internal/db"
	"tgwebapp/internal/httpapi"
	"tgwebapp/internal/logger"
	"tgwebapp/internal/network"
	"tgwebapp/internal/telegram"
)

func main() {
	// 1. Конфигурация
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}

	lg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Ошибка логгера: %v", err)
	}

	err = run(cfg, lg)
	if err != nil {
		lg.Error("app stopped", zap.Error(err))
	}
	_ = lg.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run возвращает ошибку вместо выхода, чтобы отложенные Close отработали.
func run(cfg *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. БД пользователей
	store, err := db.Open(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	lg.Info("sqlite ready", zap.String("path", cfg.SQLitePath))

	// 3. Бот (кнопка открытия Mini App)
	var bot *telegram.Bot
	if cfg.BotEnabled {
		client, err := network.NewClient(cfg.TelegramProxy)
		if err != nil {
			return fmt.Errorf("bot http client: %w", err)
		}
		bot, err = telegram.NewBot(cfg.TelegramToken, client, cfg.MiniAppURL, lg)
		if err != nil {
			return fmt.Errorf("bot init: %w", err)
		}
	}

	// 4. HTTP API для Mini App
	opts := []httpapi.Option{httpapi.WithMaxAuthAge(cfg.MaxAuthAge)}
	if cfg.JWTSecret != "" {
		opts = append(opts, httpapi.WithSessions(httpapi.NewSessionIssuer(cfg.JWTSecret, cfg.SessionTTL)))
	} else {
		lg.Info("JWT_SECRET not set, session endpoints disabled")
	}
	api := httpapi.New(store, cfg.TelegramToken, lg, opts...)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		lg.Info("http api listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	if bot != nil {
		go bot.Start(ctx)
	}

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("http shutdown", zap.Error(err))
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("http api: %w", err)
	default:
		return nil
	}
}
