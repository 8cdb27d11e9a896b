package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/me/gatehouse/pkg/model"
)

// csvHeader is the column layout of the user table.
var csvHeader = []string{"users", "password", "role", "avatar"}

// CSVStore implements UserStore on a flat CSV file. Every operation reads
// the whole table; writes rewrite it.
type CSVStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewCSVStore returns a store backed by the CSV file at path. The file does
// not need to exist yet; it is created on the first CreateUser.
func NewCSVStore(path string, logger *slog.Logger) *CSVStore {
	return &CSVStore{
		path:   path,
		logger: logger.With("component", "store", "backend", "csv"),
	}
}

// Path returns the location of the CSV file.
func (s *CSVStore) Path() string {
	return s.path
}

// Close is a no-op; the file is opened per operation.
func (s *CSVStore) Close() error {
	return nil
}

func (s *CSVStore) GetUser(ctx context.Context, username string) (*model.User, error) {
	s.logger.Debug("csv", "op", "scan", "username", username)

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.readAll()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (s *CSVStore) ListUsers(ctx context.Context) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

func (s *CSVStore) CreateUser(ctx context.Context, u *model.User) error {
	s.logger.Debug("csv", "op", "append", "username", u.Username)

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.readAll()
	if errors.Is(err, model.ErrStoreUnavailable) {
		users = nil
	} else if err != nil {
		return err
	}

	for _, existing := range users {
		if existing.Username == u.Username {
			return fmt.Errorf("%w: %s", model.ErrUserExists, u.Username)
		}
	}

	users = append(users, u)
	return s.writeAll(users)
}

// readAll parses the whole table. A missing file yields ErrStoreUnavailable.
func (s *CSVStore) readAll() ([]*model.User, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found", model.ErrStoreUnavailable, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	return parseCSV(f)
}

func parseCSV(r io.Reader) ([]*model.User, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, name := range csvHeader[:3] {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("csv: missing column %q", name)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var users []*model.User
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		u := &model.User{
			Username:     field(rec, "users"),
			PasswordHash: field(rec, "password"),
			Role:         model.Role(field(rec, "role")),
			Avatar:       field(rec, "avatar"),
		}
		if u.Username == "" {
			continue
		}
		if u.Avatar == "" {
			u.Avatar = model.DefaultAvatar
		}
		users = append(users, u)
	}
	return users, nil
}

// writeAll replaces the table atomically via a temp file in the same directory.
func (s *CSVStore) writeAll(users []*model.User) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".users-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return err
	}
	for _, u := range users {
		if err := w.Write([]string{u.Username, u.PasswordHash, string(u.Role), u.Avatar}); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
