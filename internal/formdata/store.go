package formdata

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// bucketLayout names the hourly temp bucket, relative to the temp root.
const bucketLayout = "2006/01/02/15"

// TempStore places saved uploads in hourly buckets under a root directory.
type TempStore struct {
	fs   afero.Fs
	root func() string
	now  func() time.Time
}

// NewTempStore builds a store on fs. root is called for every bucket so
// the directory may change at runtime.
func NewTempStore(fs afero.Fs, root func() string) *TempStore {
	return &TempStore{fs: fs, root: root, now: time.Now}
}

// Root returns the current temp root.
func (s *TempStore) Root() string { return s.root() }

// Fs returns the filesystem the store writes to.
func (s *TempStore) Fs() afero.Fs { return s.fs }

// BucketDir returns the bucket directory for t.
func (s *TempStore) BucketDir(t time.Time) string {
	return filepath.Join(s.root(), filepath.FromSlash(t.Format(bucketLayout)))
}

// EnsureBucket creates the bucket for the current hour and returns it.
func (s *TempStore) EnsureBucket() (string, error) {
	dir := s.BucketDir(s.now())
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create temp bucket %s: %w", dir, err)
	}
	return dir, nil
}

// Create opens a new uniquely named file in dir. The name keeps the
// extension of filename as sent.
func (s *TempStore) Create(dir, filename string) (afero.File, error) {
	name := uuid.NewString() + filepath.Ext(filename)
	path := filepath.Join(dir, name)
	f, err := s.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, nil
}

// Remove deletes path and anything below it. Missing paths are not an error.
func (s *TempStore) Remove(path string) error {
	return s.fs.RemoveAll(path)
}
