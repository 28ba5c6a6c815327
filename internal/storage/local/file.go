package local

import (
	"bytes"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/storefront-cart/internal/domain/cart"
)

const fileExt = ".json.gz"

var _ cart.Store = (*FileStore)(nil)

// FileStore keeps each key in its own gzip-compressed file inside a
// directory. The quota applies to the total compressed size on disk; 0
// disables it.
type FileStore struct {
	dir   string
	quota int64

	mu    sync.Mutex
	sizes map[string]int64
	used  int64
}

// OpenFileStore creates dir if needed and indexes the files already in it.
func OpenFileStore(dir string, quota int64) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "create store dir %s", dir)
	}

	s := &FileStore{
		dir:   dir,
		quota: quota,
		sizes: make(map[string]int64),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read store dir %s", dir)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, errors.Wrapf(err, "stat %s", name)
		}
		s.sizes[name] = info.Size()
		s.used += info.Size()
	}
	return s, nil
}

// Get reads and decompresses the value stored under key.
func (s *FileStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, cart.ErrNoValue
		}
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}
	return data, nil
}

// Set compresses value and atomically replaces the file for key. It returns
// cart.ErrQuotaExceeded, leaving the old file in place, when the compressed
// value does not fit.
func (s *FileStore) Set(key string, value []byte) error {
	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	if _, err := gz.Write(value); err != nil {
		return errors.Wrap(err, "compress")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "compress")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := fileName(key)
	size := int64(buf.Len())
	used := s.used - s.sizes[name] + size
	if s.quota > 0 && used > s.quota {
		return cart.ErrQuotaExceeded
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "rename")
	}

	s.sizes[name] = size
	s.used = used
	return nil
}

// Remove deletes the file for key. A missing file is not an error.
func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := fileName(key)
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "remove")
	}
	s.used -= s.sizes[name]
	delete(s.sizes, name)
	return nil
}

// Used returns the compressed bytes currently on disk.
func (s *FileStore) Used() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, fileName(key))
}

// fileName hex-encodes key so any key maps to a safe file name.
func fileName(key string) string {
	return hex.EncodeToString([]byte(key)) + fileExt
}
