// Package filestore persists uploaded image bytes under generated names.
package filestore

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"realreview/pkg/platform/sentinel"
)

const maxBaseNameLength = 100

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// File is a readable, seekable stored file.
type File interface {
	io.ReadSeekCloser
	Stat() (os.FileInfo, error)
}

// Store writes files under a root directory of an afero filesystem.
type Store struct {
	fs   afero.Fs
	root string
	now  func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source used for name prefixes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New roots a store at dir on fs. Use afero.NewOsFs in production and
// afero.NewMemMapFs in tests.
func New(fs afero.Fs, dir string, opts ...Option) *Store {
	s := &Store{fs: fs, root: filepath.Clean(dir), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates the root directory.
func (s *Store) Init() error {
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("creating upload dir %s: %w", s.root, err)
	}
	return nil
}

// Save copies r into a new file and returns its generated name:
// <unix millis>_<8 hex>_<sanitized base name>.
func (s *Store) Save(ctx context.Context, r io.Reader, originalName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := s.generateName(originalName)
	if err != nil {
		return "", err
	}

	target := filepath.Join(s.root, name)
	if err := s.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}
	f, err := s.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(target)
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(target)
		return "", fmt.Errorf("closing %s: %w", name, err)
	}
	return name, nil
}

// Open returns the stored file. Names that could escape the root are
// treated as absent.
func (s *Store) Open(name string) (File, error) {
	if !validName(name) {
		return nil, sentinel.ErrNotFound
	}
	f, err := s.fs.Open(filepath.Join(s.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, sentinel.ErrNotFound
	}
	return f, nil
}

// Delete removes a stored file. Missing files are not an error.
func (s *Store) Delete(name string) error {
	if !validName(name) {
		return nil
	}
	if err := s.fs.Remove(filepath.Join(s.root, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", name, err)
	}
	return nil
}

// Exists reports whether name is stored.
func (s *Store) Exists(name string) (bool, error) {
	if !validName(name) {
		return false, nil
	}
	return afero.Exists(s.fs, filepath.Join(s.root, name))
}

func (s *Store) generateName(originalName string) (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generating file name: %w", err)
	}
	// the first four bytes of a v4 uuid carry no version bits
	return fmt.Sprintf("%d_%s_%s", s.now().UnixMilli(), hex.EncodeToString(u[:4]), Sanitize(originalName)), nil
}

// Sanitize reduces a client-supplied file name to a safe base name.
func Sanitize(originalName string) string {
	base := path.Base(strings.ReplaceAll(originalName, `\`, "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "upload"
	}
	if len(base) > maxBaseNameLength {
		base = base[len(base)-maxBaseNameLength:]
	}
	return base
}

func validName(name string) bool {
	return name != "" &&
		!strings.ContainsAny(name, `/\`) &&
		!strings.Contains(name, "..")
}
