package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/me/gatehouse/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements UserStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// A single connection keeps ":memory:" databases shared across calls.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store", "backend", "sqlite"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*model.User, error) {
	s.logger.Debug("sql", "op", "select", "table", "users", "username", username)

	var u model.User
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT username, password_hash, role, avatar FROM users WHERE username = ?`, username,
	).Scan(&u.Username, &u.PasswordHash, &role, &u.Avatar)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*model.User, error) {
	s.logger.Debug("sql", "op", "list", "table", "users")

	rows, err := s.db.QueryContext(ctx,
		`SELECT username, password_hash, role, avatar FROM users ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		var u model.User
		var role string
		if err := rows.Scan(&u.Username, &u.PasswordHash, &role, &u.Avatar); err != nil {
			return nil, err
		}
		u.Role = model.Role(role)
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *model.User) error {
	s.logger.Debug("sql", "op", "insert", "table", "users", "username", u.Username)

	avatar := u.Avatar
	if avatar == "" {
		avatar = model.DefaultAvatar
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role, avatar) VALUES (?, ?, ?, ?)`,
		u.Username, u.PasswordHash, string(u.Role), avatar,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", model.ErrUserExists, u.Username)
	}
	return err
}

// ImportCSV copies every row of a CSV user table into the database,
// skipping usernames that already exist. It returns the number of rows added.
func (s *SQLiteStore) ImportCSV(ctx context.Context, src *CSVStore) (int, error) {
	users, err := src.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", src.Path(), err)
	}

	added := 0
	for _, u := range users {
		existing, err := s.GetUser(ctx, u.Username)
		if err != nil {
			return added, err
		}
		if existing != nil {
			continue
		}
		if err := s.CreateUser(ctx, u); err != nil {
			return added, fmt.Errorf("import %s: %w", u.Username, err)
		}
		added++
	}
	s.logger.Info("imported users", "source", src.Path(), "added", added)
	return added, nil
}
