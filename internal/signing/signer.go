// Package signing computes the keyed request signature the remote authority
// expects on every authenticated call: HMAC-SHA256 over
// "timestamp.body", carried in the X-Signature and X-Timestamp headers.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

const (
	SignatureHeader = "X-Signature"
	TimestampHeader = "X-Timestamp"
)

// Sign returns the lowercase-hex HMAC-SHA256 of
// ASCII(timestamp) + "." + body under key. Deterministic and stateless.
func Sign(timestamp int64, body, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Attach sets the signature and timestamp headers on req for the given body.
// When key is empty (pre-login) it is a no-op: the login endpoint itself is
// unsigned and must be protected server-side.
func Attach(req *http.Request, body, key []byte, at time.Time) {
	if len(key) == 0 {
		return
	}
	ts := at.Unix()
	req.Header.Set(SignatureHeader, Sign(ts, body, key))
	req.Header.Set(TimestampHeader, strconv.FormatInt(ts, 10))
}
