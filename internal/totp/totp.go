// Package totp verifies time-based one-time passwords against a shared
// base32 secret, tolerating bounded clock drift between the credential
// minting clock and the verifying device.
//
// The algorithm matches the contractor credential backend: 30-second
// periods, 6 digits, HMAC-SHA256 with RFC 4226 dynamic truncation.
package totp

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/nubewired/scangate/internal/common"
)

const (
	// Period is the length of one TOTP time step.
	Period = 30 * time.Second

	// Digits is the token length.
	Digits = 6

	// skew is the tolerated counter drift on each side of the current
	// period, matching the backend's validation window.
	skew = 1
)

// Counter maps a point in time to its TOTP counter value.
func Counter(at time.Time) uint64 {
	return uint64(at.Unix() / int64(Period/time.Second))
}

// Generate computes the 6-digit token for a base32 seed at the given
// counter. The seed is decoded per RFC 4648 (case-insensitive, padding
// stripped); a malformed seed yields an error wrapping common.ErrInvalidSeed.
func Generate(seed string, counter uint64) (string, error) {
	key, err := decodeSeed(seed)
	if err != nil {
		return "", err
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha256.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// RFC 4226 dynamic truncation.
	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%06d", truncated%1_000_000), nil
}

// Validate reports whether token matches the expected code for seed at the
// given time, accepting counters {current-1, current, current+1}. A
// malformed seed never matches.
func Validate(token, seed string, at time.Time) bool {
	current := Counter(at)

	ok := false
	for offset := uint64(0); offset <= skew; offset++ {
		if current >= offset {
			if matches(token, seed, current-offset) {
				ok = true
			}
		}
		if offset > 0 {
			if matches(token, seed, current+offset) {
				ok = true
			}
		}
	}
	return ok
}

func matches(token, seed string, counter uint64) bool {
	generated, err := Generate(seed, counter)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(generated), []byte(token)) == 1
}

func decodeSeed(seed string) ([]byte, error) {
	clean := strings.ToUpper(strings.ReplaceAll(seed, "=", ""))
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidSeed, err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty seed", common.ErrInvalidSeed)
	}
	return key, nil
}
