// Package offline renders grant/deny decisions for scanned contractor
// credentials without network access, backed by an encrypted credential
// cache and a replay ledger of used nonces.
package offline

import "time"

// Tunables mirrored from the validation backend's configuration. They must
// be kept in lockstep with the server (the nonce TTL in particular matches
// the server-side replay window), so they are defined exactly once here.
const (
	// MaxCachedCredentials bounds the credential cache; oldest entries are
	// trimmed beyond this.
	MaxCachedCredentials = 500

	// CacheFreshness is how long a cached credential stays trustworthy for
	// offline decisions.
	CacheFreshness = 48 * time.Hour

	// CredentialFreshness is the accepted distance between a QR credential's
	// mint time and the scan time.
	CredentialFreshness = 90 * time.Second

	// NonceTTL is how long used nonces are retained; matches the server's
	// replay window.
	NonceTTL = 5 * time.Minute
)

// Deny reasons shown to the guard. The "(offline check)" suffix
// distinguishes local decisions from server ones in the scan history.
const (
	ReasonExpired      = "QR code expired (offline check)"
	ReasonReplayed     = "QR code already used (offline check)"
	ReasonInvalidToken = "Invalid security token (offline check)"
)

// ContractorInfo is the contractor identity attached to a grant.
type ContractorInfo struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Company  string `json:"company,omitempty"`
	Email    string `json:"email,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// Status is the outcome of a validation decision.
type Status string

const (
	StatusGranted Status = "granted"
	StatusDenied  Status = "denied"
)

// Decision is an offline grant or deny. The engine expresses "no offline
// opinion" as a nil *Decision, in which case the caller must surface the
// original network error rather than fabricate an outcome.
type Decision struct {
	Status     Status          `json:"status"`
	Contractor *ContractorInfo `json:"contractor,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// Granted reports whether the decision grants access.
func (d *Decision) Granted() bool {
	return d != nil && d.Status == StatusGranted
}

// cachedCredential is one persisted contractor record, keyed by contractor
// ID. TOTPSeed may be empty when the server never shared one; offline
// validation then degrades to identity-known-only mode.
type cachedCredential struct {
	ContractorID string         `json:"contractorId"`
	Contractor   ContractorInfo `json:"contractor"`
	TOTPSeed     string         `json:"totpSeed,omitempty"`
	CachedAt     time.Time      `json:"cachedAt"`
}

// usedNonce is one replay-ledger entry. Once recorded, a nonce can never be
// consumed again until it ages out of the ledger.
type usedNonce struct {
	Nonce  string    `json:"nonce"`
	UsedAt time.Time `json:"usedAt"`
}
