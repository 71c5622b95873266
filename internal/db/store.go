package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"tgwebapp/internal/initdata"
)

// ErrUserNotFound возвращается GetUser, если пользователь ещё не входил.
var ErrUserNotFound = errors.New("пользователь не найден")

type Store struct {
	db *sql.DB
}

// UserProfile: последняя известная копия профиля из проверенного initData.
type UserProfile struct {
	TelegramID   int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
	IsPremium    bool   `json:"is_premium"`
	LastAuthDate uint64 `json:"last_auth_date"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("путь к SQLite пустой")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию БД: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия БД: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping проверяет, что БД доступна (для /api/health).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func applyPragmas(db *sql.DB) error {
	pragma := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, stmt := range pragma {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ошибка PRAGMA: %w", err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS users (
	telegram_id INTEGER PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT,
	username TEXT,
	language_code TEXT,
	photo_url TEXT,
	is_premium INTEGER NOT NULL DEFAULT 0,
	last_auth_date INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("ошибка миграции: %w", err)
	}
	return nil
}

// EnsureUser сохраняет или обновляет профиль пользователя. last_auth_date
// не откатывается назад, если пришёл более старый initData.
func (s *Store) EnsureUser(ctx context.Context, user *initdata.User, authDate uint64) error {
	if user == nil {
		return fmt.Errorf("пустой пользователь")
	}

	lastName, _ := user.LastName()
	username, _ := user.Username()
	lang, _ := user.LanguageCode()
	photo, _ := user.PhotoURL()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (telegram_id, first_name, last_name, username, language_code, photo_url, is_premium, last_auth_date)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(telegram_id) DO UPDATE SET
	first_name = excluded.first_name,
	last_name = excluded.last_name,
	username = excluded.username,
	language_code = excluded.language_code,
	photo_url = excluded.photo_url,
	is_premium = excluded.is_premium,
	last_auth_date = MAX(users.last_auth_date, excluded.last_auth_date),
	updated_at = CURRENT_TIMESTAMP
`, user.ID(), user.FirstName(), nullable(lastName), nullable(username), nullable(lang), nullable(photo), user.IsPremium(), clampUnix(authDate))
	if err != nil {
		return fmt.Errorf("ошибка сохранения пользователя: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, telegramID int64) (UserProfile, error) {
	var (
		p                               UserProfile
		lastName, username, lang, photo sql.NullString
		lastAuth                        int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT telegram_id, first_name, last_name, username, language_code, photo_url, is_premium, last_auth_date, created_at, updated_at
FROM users
WHERE telegram_id = ?
`, telegramID).Scan(&p.TelegramID, &p.FirstName, &lastName, &username, &lang, &photo, &p.IsPremium, &lastAuth, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserProfile{}, ErrUserNotFound
		}
		return UserProfile{}, fmt.Errorf("ошибка поиска пользователя: %w", err)
	}

	p.LastName = lastName.String
	p.Username = username.String
	p.LanguageCode = lang.String
	p.PhotoURL = photo.String
	if lastAuth > 0 {
		p.LastAuthDate = uint64(lastAuth)
	}
	return p, nil
}

func clampUnix(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
