// Package encstore persists JSON-serializable values as authenticated-
// encrypted blob files, one file per logical key. The 256-bit AES key lives
// in the secure secret store and is generated on first use; it never appears
// inside the blobs it protects.
//
// Failure semantics: a missing blob is common.ErrNotFound, a tampered or
// undecryptable blob is common.ErrDecrypt. Both degrade to a cache miss for
// callers; the store never returns unauthenticated plaintext.
package encstore

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
	"github.com/nubewired/scangate/internal/securestore"
)

// encryptionKeySecret is the secret-store key holding the blob AES key.
const encryptionKeySecret = "blob_encryption_key"

const blobExt = ".bin"

type Store struct {
	dir     string
	secrets securestore.Store

	mu  sync.Mutex
	key []byte // lazily loaded, generated at most once
}

// New returns a Store writing blobs under dir, with its encryption key kept
// in secrets.
func New(dir string, secrets securestore.Store) (*Store, error) {
	if _, err := filex.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &Store{dir: dir, secrets: secrets}, nil
}

// Save serializes v, encrypts it, and atomically writes the blob for key.
func (s *Store) Save(key string, v any) error {
	encKey, err := s.getOrCreateKey()
	if err != nil {
		return err
	}

	blob, err := cryptox.SealValue(v, encKey)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	return filex.WriteFileAtomic(s.path(key), blob, 0o600)
}

// Load reads and decrypts the blob for key into v. A missing blob yields
// common.ErrNotFound; an authentication failure yields common.ErrDecrypt and
// never partially-decoded data.
func (s *Store) Load(key string, v any) error {
	encKey, err := s.getOrCreateKey()
	if err != nil {
		return err
	}

	blob, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return common.ErrNotFound
		}
		return fmt.Errorf("read blob %s: %w", key, err)
	}

	if err := cryptox.OpenValue(blob, encKey, v); err != nil {
		return fmt.Errorf("%w: blob %s: %w", common.ErrDecrypt, key, err)
	}
	return nil
}

// Delete removes the blob for key. Missing blobs are ignored.
func (s *Store) Delete(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

// DeleteAll removes every blob. Used on logout.
func (s *Store) DeleteAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list blobs: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), blobExt) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("delete blob %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+blobExt)
}

// getOrCreateKey loads the 256-bit blob key from the secret store, creating
// and persisting it before first use. The key is cached for the process
// lifetime; it is generated at most once and afterwards only read.
func (s *Store) getOrCreateKey() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		return s.key, nil
	}

	key, err := s.secrets.Get(encryptionKeySecret)
	if err == nil {
		s.key = key
		return key, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("load encryption key: %w", err)
	}

	key = common.GenerateRandByteArray(32)
	if err := s.secrets.Set(encryptionKeySecret, key); err != nil {
		return nil, fmt.Errorf("persist encryption key: %w", err)
	}
	s.key = key
	return key, nil
}
