package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_MatchesReferenceComputation(t *testing.T) {
	key := []byte("signing-key")
	body := []byte(`{"qrData":"abc"}`)
	ts := int64(1_700_000_000)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("1700000000." + string(body)))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, Sign(ts, body, key))
}

func TestSign_Deterministic(t *testing.T) {
	key := []byte("k")
	body := []byte("b")
	assert.Equal(t, Sign(42, body, key), Sign(42, body, key))
}

func TestSign_AnyInputChangeChangesOutput(t *testing.T) {
	base := Sign(42, []byte("body"), []byte("key"))

	assert.NotEqual(t, base, Sign(43, []byte("body"), []byte("key")))
	assert.NotEqual(t, base, Sign(42, []byte("body2"), []byte("key")))
	assert.NotEqual(t, base, Sign(42, []byte("body"), []byte("key2")))
}

func TestSign_LowercaseHex(t *testing.T) {
	sig := Sign(1, []byte("x"), []byte("y"))
	require.Len(t, sig, 64)
	assert.Equal(t, strings.ToLower(sig), sig)
	_, err := hex.DecodeString(sig)
	require.NoError(t, err)
}

func TestAttach_SetsHeaders(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "http://example.com", nil)
	require.NoError(t, err)

	body := []byte(`{"qrData":"abc"}`)
	key := []byte("signing-key")
	at := time.Unix(1_700_000_000, 500)

	Attach(req, body, key, at)

	assert.Equal(t, "1700000000", req.Header.Get(TimestampHeader))
	assert.Equal(t, Sign(1_700_000_000, body, key), req.Header.Get(SignatureHeader))
}

func TestAttach_NoKeyIsNoop(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "http://example.com", nil)
	require.NoError(t, err)

	Attach(req, []byte("body"), nil, time.Now())

	assert.Empty(t, req.Header.Get(SignatureHeader))
	assert.Empty(t, req.Header.Get(TimestampHeader))
}
