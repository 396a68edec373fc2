package securestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nubewired/scangate/internal/common"
	"github.com/nubewired/scangate/internal/cryptox"
	"github.com/nubewired/scangate/internal/filex"
)

const (
	saltFile   = "store.salt"
	secretExt  = ".sec"
	saltLength = 16
)

// FileStore keeps secrets as individual files, each wrapped with AES-GCM
// under a key derived (argon2id) from a device provisioning secret. It
// stands in for the platform keychain on targets without one.
type FileStore struct {
	mu      sync.Mutex
	dir     string
	wrapKey []byte
}

// NewFileStore opens (or initializes) a file-backed store in dir. The salt
// for key derivation is created on first use and kept alongside the secrets;
// the device secret itself is never written to disk.
func NewFileStore(dir string, deviceSecret []byte) (*FileStore, error) {
	if _, err := filex.EnsureDir(dir); err != nil {
		return nil, err
	}

	salt, err := loadOrCreateSalt(filepath.Join(dir, saltFile))
	if err != nil {
		return nil, err
	}

	return &FileStore{dir: dir, wrapKey: cryptox.DeriveKey(deviceSecret, salt)}, nil
}

func (s *FileStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("read secret: %w", err)
	}

	value, err := cryptox.Open(blob, s.wrapKey)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrap secret: %w", common.ErrDecrypt, err)
	}
	return value, nil
}

func (s *FileStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := cryptox.Seal(value, s.wrapKey)
	if err != nil {
		return fmt.Errorf("wrap secret: %w", err)
	}
	return filex.WriteFileAtomic(s.path(key), blob, 0o600)
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}

func (s *FileStore) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list secrets: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), secretExt) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("delete secret %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+secretExt)
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil && len(salt) == saltLength {
		return salt, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read salt: %w", err)
	}

	salt = common.GenerateRandByteArray(saltLength)
	if err := filex.WriteFileAtomic(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("write salt: %w", err)
	}
	return salt, nil
}
