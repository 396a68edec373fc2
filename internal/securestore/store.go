// Package securestore abstracts platform secret storage (the keychain
// equivalent). The engine only depends on get/set/delete of small byte
// secrets: the scanner session token, the request-signing key, and the
// blob-encryption key.
package securestore

// Store is a minimal secret store.
//
// Implementations must treat stored values as sensitive: at rest they are
// either OS-protected (platform keychain) or encrypted (FileStore).
type Store interface {
	// Get returns the secret for key, or common.ErrNotFound.
	Get(key string) ([]byte, error)

	// Set stores the secret under key, replacing any previous value.
	Set(key string, value []byte) error

	// Delete removes the secret for key. Deleting a missing key is not an error.
	Delete(key string) error

	// DeleteAll removes every stored secret. Used on logout.
	DeleteAll() error
}
