package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nubewired/scangate/internal/codec"
	"github.com/nubewired/scangate/internal/common"
	"github.com/nubewired/scangate/internal/encstore"
	"github.com/nubewired/scangate/internal/filex"
	"github.com/nubewired/scangate/internal/logging"
	"github.com/nubewired/scangate/internal/totp"
)

const (
	// credentialsBlobKey names the encrypted blob holding the credential set.
	credentialsBlobKey = "offline_credentials"

	// ledgerFile holds the used-nonce ledger. Stored in the clear: nonces
	// are opaque single-use tokens carrying no contractor data.
	ledgerFile = "used_nonces.json"
)

// Cache is the offline validation engine. It owns the two persisted
// collections (cached credentials, used nonces) and renders decisions when
// the remote authority is unreachable.
//
// All public methods serialize on one mutex: concurrent decision attempts
// must not interleave read-modify-write of the nonce ledger, or a replay
// could slip through the race. Decision latency is sub-millisecond, so a
// single lock around the whole component is enough.
type Cache struct {
	mu         sync.Mutex
	store      *encstore.Store
	ledgerPath string
	log        logging.Logger
	clock      func() time.Time
}

// NewCache returns a Cache persisting credentials through store and the
// nonce ledger as a plain file under dir.
func NewCache(store *encstore.Store, dir string, log logging.Logger) (*Cache, error) {
	if _, err := filex.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &Cache{
		store:      store,
		ledgerPath: filepath.Join(dir, ledgerFile),
		log:        log,
		clock:      time.Now,
	}, nil
}

// RecordGrantedCredential upserts the credential for contractorID after a
// successful online grant: replace any existing entry, insert at the front,
// trim the oldest entries beyond the cache bound. A previously known TOTP
// seed is preserved when the new write does not supply one.
func (c *Cache) RecordGrantedCredential(ctx context.Context, contractorID string, info ContractorInfo, totpSeed string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.loadCredentials(ctx)

	seed := totpSeed
	filtered := make([]cachedCredential, 0, len(entries)+1)
	for _, e := range entries {
		if e.ContractorID == contractorID {
			if seed == "" {
				seed = e.TOTPSeed
			}
			continue
		}
		filtered = append(filtered, e)
	}

	entry := cachedCredential{
		ContractorID: contractorID,
		Contractor:   info,
		TOTPSeed:     seed,
		CachedAt:     c.clock(),
	}
	entries = append([]cachedCredential{entry}, filtered...)

	return c.saveCredentials(trim(entries))
}

// StoreOfflineBundle upserts every contractor record of a server-pushed
// bundle, including its TOTP seed. Unlike the single-grant path, records
// keep their position (existing) or are appended (new), then the set is
// trimmed. Re-syncing the same bundle leaves the cache unchanged in size.
func (c *Cache) StoreOfflineBundle(ctx context.Context, contractors []codec.BundleContractor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.loadCredentials(ctx)
	now := c.clock()

	index := make(map[string]int, len(entries))
	for i, e := range entries {
		index[e.ContractorID] = i
	}

	for _, rec := range contractors {
		entry := cachedCredential{
			ContractorID: rec.ID,
			Contractor: ContractorInfo{
				ID:       rec.ID,
				FullName: rec.FullName(),
				Company:  rec.Company,
				PhotoURL: rec.Photo,
			},
			TOTPSeed: rec.TOTPSeed,
			CachedAt: now,
		}
		if i, ok := index[rec.ID]; ok {
			entries[i] = entry
		} else {
			index[rec.ID] = len(entries)
			entries = append(entries, entry)
		}
	}

	c.log.Info(ctx, "offline bundle stored", "contractors", len(contractors), "cache_size", len(entries))
	return c.saveCredentials(trim(entries))
}

// AttemptOfflineValidation renders a local decision for a scanned QR string.
// A nil result means the engine has no opinion (undecodable payload, unknown
// contractor, or a cache entry too stale to trust) and the caller must
// report the original network error instead.
//
// Check order is load-bearing: staleness and replay run before the TOTP
// computation, and the nonce is marked used only after every check has
// passed, so a credential failing TOTP was never "spent".
func (c *Cache) AttemptOfflineValidation(ctx context.Context, qrData string) *Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := codec.DecodeQRPayload(qrData)
	if err != nil {
		c.log.Warn(ctx, "offline validation: undecodable payload", "err", err)
		return nil
	}

	cached, ok := c.lookup(ctx, payload.ContractorID)
	if !ok {
		c.log.Info(ctx, "offline validation: contractor not cached", "contractor_id", payload.ContractorID)
		return nil
	}

	now := c.clock()

	if now.Sub(cached.CachedAt) >= CacheFreshness {
		c.log.Info(ctx, "offline validation: cache entry too stale", "contractor_id", payload.ContractorID, "cached_at", cached.CachedAt)
		return nil
	}

	mintedAt := time.Unix(payload.Timestamp, 0)
	if age := now.Sub(mintedAt); age > CredentialFreshness || age < -CredentialFreshness {
		c.log.Info(ctx, "offline deny: credential outside freshness window", "contractor_id", payload.ContractorID, "age", age)
		return &Decision{Status: StatusDenied, Reason: ReasonExpired}
	}

	nonces := c.loadNonces(ctx)
	for _, n := range nonces {
		if n.Nonce == payload.Nonce {
			c.log.Warn(ctx, "offline deny: nonce replay", "contractor_id", payload.ContractorID)
			return &Decision{Status: StatusDenied, Reason: ReasonReplayed}
		}
	}

	if cached.TOTPSeed != "" {
		if !totp.Validate(payload.TOTPToken, cached.TOTPSeed, mintedAt) {
			c.log.Warn(ctx, "offline deny: totp mismatch", "contractor_id", payload.ContractorID)
			return &Decision{Status: StatusDenied, Reason: ReasonInvalidToken}
		}
	} else {
		// Identity-known-only mode: no seed was ever shared for this
		// contractor, so the token cannot be checked locally. Accepted risk.
		c.log.Warn(ctx, "offline validation without totp seed", "contractor_id", payload.ContractorID)
	}

	if err := c.recordNonce(nonces, payload.Nonce, now); err != nil {
		// Granting without a recorded nonce would open a replay hole.
		c.log.Error(ctx, "offline validation: cannot record nonce", "err", err)
		return nil
	}

	info := cached.Contractor
	c.log.Info(ctx, "offline grant", "contractor_id", payload.ContractorID, "site", payload.SiteCode)
	return &Decision{Status: StatusGranted, Contractor: &info}
}

// ClearAll deletes both persisted collections. Invoked on logout; there is
// deliberately no partial-clear path.
func (c *Cache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Delete(credentialsBlobKey); err != nil {
		return err
	}
	if err := os.Remove(c.ledgerPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove nonce ledger: %w", err)
	}
	c.log.Info(ctx, "offline cache cleared")
	return nil
}

// CachedCount returns the number of cached credentials. Diagnostic use.
func (c *Cache) CachedCount(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.loadCredentials(ctx))
}

func (c *Cache) lookup(ctx context.Context, contractorID string) (cachedCredential, bool) {
	for _, e := range c.loadCredentials(ctx) {
		if e.ContractorID == contractorID {
			return e, true
		}
	}
	return cachedCredential{}, false
}

// loadCredentials treats every failure as an empty cache: a missing blob is
// normal, and a corrupt one must degrade to cache miss, never to a grant.
func (c *Cache) loadCredentials(ctx context.Context) []cachedCredential {
	var entries []cachedCredential
	err := c.store.Load(credentialsBlobKey, &entries)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrNotFound):
	case errors.Is(err, common.ErrDecrypt):
		c.log.Warn(ctx, "credential blob unreadable, treating as empty", "err", err)
	default:
		c.log.Error(ctx, "credential blob load failed", "err", err)
	}
	return entries
}

func (c *Cache) saveCredentials(entries []cachedCredential) error {
	return c.store.Save(credentialsBlobKey, entries)
}

func (c *Cache) loadNonces(ctx context.Context) []usedNonce {
	data, err := os.ReadFile(c.ledgerPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.log.Error(ctx, "nonce ledger read failed", "err", err)
		}
		return nil
	}

	var nonces []usedNonce
	if err := json.Unmarshal(data, &nonces); err != nil {
		c.log.Warn(ctx, "nonce ledger unreadable, treating as empty", "err", err)
		return nil
	}
	return nonces
}

// recordNonce appends the nonce to the ledger, first purging entries older
// than the replay window. Purging on every write bounds ledger growth
// without a background sweep.
func (c *Cache) recordNonce(nonces []usedNonce, nonce string, now time.Time) error {
	kept := make([]usedNonce, 0, len(nonces)+1)
	for _, n := range nonces {
		if now.Sub(n.UsedAt) < NonceTTL {
			kept = append(kept, n)
		}
	}
	kept = append(kept, usedNonce{Nonce: nonce, UsedAt: now})

	data, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("marshal nonce ledger: %w", err)
	}
	return filex.WriteFileAtomic(c.ledgerPath, data, 0o600)
}

// trim keeps the newest MaxCachedCredentials entries, dropping the tail.
func trim(entries []cachedCredential) []cachedCredential {
	if len(entries) > MaxCachedCredentials {
		entries = entries[:MaxCachedCredentials]
	}
	return entries
}
