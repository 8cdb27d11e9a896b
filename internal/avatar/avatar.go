// Package avatar stores uploaded profile images in a flat upload directory.
package avatar

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/me/gatehouse/pkg/model"
)

// DefaultMaxSize is the upload limit when none is configured.
const DefaultMaxSize = 8 << 20

// URLPrefix is the path prefix recorded in the user table for avatar files.
const URLPrefix = "uploads"

var allowedExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// Allowed reports whether filename carries a permitted image extension.
func Allowed(filename string) bool {
	return allowedExts[strings.ToLower(filepath.Ext(filename))]
}

// Storage writes avatar files under dir.
type Storage struct {
	dir     string
	maxSize int64
	logger  *slog.Logger
}

// NewStorage creates a Storage. A non-positive maxSize selects DefaultMaxSize.
func NewStorage(dir string, maxSize int64, logger *slog.Logger) *Storage {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Storage{
		dir:     dir,
		maxSize: maxSize,
		logger:  logger.With("component", "avatar"),
	}
}

// Dir returns the upload directory.
func (s *Storage) Dir() string {
	return s.dir
}

// MaxSize returns the per-file byte limit.
func (s *Storage) MaxSize() int64 {
	return s.maxSize
}

// Save writes r to <dir>/<username><ext> and returns the relative path
// stored in the user table, e.g. "uploads/alice.png".
func (s *Storage) Save(username, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExts[ext] {
		return "", model.ErrInvalidAvatar
	}
	if !model.ValidUsername(username) {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidUsername, username)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := username + ext
	dest := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	// Read one byte past the limit so an oversized upload is detected
	// without buffering all of it.
	n, err := io.Copy(tmp, io.LimitReader(r, s.maxSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write avatar: %w", err)
	}
	if n > s.maxSize {
		return "", fmt.Errorf("%w (max %s)", model.ErrAvatarTooLarge, humanize.IBytes(uint64(s.maxSize)))
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("move avatar into place: %w", err)
	}

	s.logger.Info("avatar saved", "username", username, "path", dest, "size", humanize.IBytes(uint64(n)))
	return path.Join(URLPrefix, name), nil
}

// EnsureDefault writes a placeholder default.png if the upload directory
// does not already have one.
func (s *Storage) EnsureDefault() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	dest := filepath.Join(s.dir, path.Base(model.DefaultAvatar))
	if _, err := os.Stat(dest); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat default avatar: %w", err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create default avatar: %w", err)
	}
	if err := png.Encode(f, placeholder(64)); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("encode default avatar: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close default avatar: %w", err)
	}

	s.logger.Info("default avatar created", "path", dest)
	return nil
}

// placeholder draws a grey disc on a light background.
func placeholder(size int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	bg := color.RGBA{0xee, 0xee, 0xee, 0xff}
	fg := color.RGBA{0x9e, 0x9e, 0x9e, 0xff}

	c := size / 2
	r2 := (size / 3) * (size / 3)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := x-c, y-c
			if dx*dx+dy*dy <= r2 {
				img.Set(x, y, fg)
			} else {
				img.Set(x, y, bg)
			}
		}
	}
	return img
}
