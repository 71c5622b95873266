package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все настройки приложения.
type Config struct {
	Env           string
	TelegramToken string
	HTTPAddr      string
	SQLitePath    string
	MiniAppURL    string

	// MaxAuthAge: максимальный возраст initData, 0 отключает проверку.
	MaxAuthAge time.Duration

	// Если JWTSecret пустой, сессионные токены не выдаются.
	JWTSecret  string
	SessionTTL time.Duration

	TelegramProxy string
	BotEnabled    bool
}

// Load считывает .env файл (если он есть) и переменные окружения.
func Load() (*Config, error) {
	// Файла может не быть (Docker, systemd): тогда берём только окружение.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv собирает Config из переменных окружения без чтения .env.
func FromEnv() (*Config, error) {
	token := os.Getenv("TELEGRAM_TOKEN")
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("переменная TELEGRAM_TOKEN не задана")
	}

	maxAge, err := parseDuration("MAX_AUTH_AGE", "24h")
	if err != nil {
		return nil, err
	}
	ttl, err := parseDuration("SESSION_TTL", "1h")
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("SESSION_TTL должен быть больше нуля")
	}
	botEnabled, err := parseBool("BOT_ENABLED", true)
	if err != nil {
		return nil, err
	}

	return &Config{
		Env:           withDefault(os.Getenv("APP_ENV"), "development"),
		TelegramToken: token,
		HTTPAddr:      withDefault(os.Getenv("HTTP_ADDR"), ":8080"),
		SQLitePath:    resolvePath(withDefault(os.Getenv("SQLITE_PATH"), "data/app.db")),
		MiniAppURL:    os.Getenv("MINIAPP_URL"),
		MaxAuthAge:    maxAge,
		JWTSecret:     os.Getenv("JWT_SECRET"),
		SessionTTL:    ttl,
		TelegramProxy: strings.TrimSpace(os.Getenv("TELEGRAM_PROXY")),
		BotEnabled:    botEnabled,
	}, nil
}

func parseDuration(key string, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(withDefault(os.Getenv(key), fallback))
	if err != nil {
		return 0, fmt.Errorf("переменная %s некорректна: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("переменная %s не может быть отрицательной", key)
	}
	return d, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("переменная %s некорректна: %w", key, err)
	}
	return v, nil
}

func withDefault(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func resolvePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return p
	}
	if filepath.IsAbs(p) {
		return p
	}

	if exe, err := os.Executable(); err == nil {
		base := filepath.Dir(exe)
		return filepath.Clean(filepath.Join(base, p))
	}

	if cwd, err := os.Getwd(); err == nil {
		return filepath.Clean(filepath.Join(cwd, p))
	}

	return p
}
