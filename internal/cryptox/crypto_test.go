package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nubewired/scangate/internal/common"
)

type sample struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestSealOpenValue_RoundTrip(t *testing.T) {
	key := common.GenerateRandByteArray(32)
	in := sample{ID: "c-100", Name: "Jane Smith"}

	blob, err := SealValue(in, key)
	require.NoError(t, err)
	require.Greater(t, len(blob), gcmNonceSize)

	var out sample
	require.NoError(t, OpenValue(blob, key, &out))
	assert.Equal(t, in, out)
}

func TestSeal_FreshNoncePerCall(t *testing.T) {
	key := common.GenerateRandByteArray(32)

	a, err := Seal([]byte("hello"), key)
	require.NoError(t, err)
	b, err := Seal([]byte("hello"), key)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "two seals of the same plaintext must differ")
}

func TestOpen_TamperedBlobFails(t *testing.T) {
	key := common.GenerateRandByteArray(32)

	blob, err := Seal([]byte("payload"), key)
	require.NoError(t, err)

	for _, idx := range []int{0, gcmNonceSize, len(blob) - 1} {
		tampered := make([]byte, len(blob))
		copy(tampered, blob)
		tampered[idx] ^= 0x01

		_, err := Open(tampered, key)
		require.Error(t, err, "flipping byte %d must fail authentication", idx)
	}
}

func TestOpen_WrongKeyFails(t *testing.T) {
	key := common.GenerateRandByteArray(32)
	other := common.GenerateRandByteArray(32)

	blob, err := Seal([]byte("payload"), key)
	require.NoError(t, err)

	_, err = Open(blob, other)
	require.Error(t, err)
}

func TestOpen_TooShortBlob(t *testing.T) {
	key := common.GenerateRandByteArray(32)

	_, err := Open([]byte{0x01, 0x02}, key)
	require.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestSeal_InvalidKeyLength(t *testing.T) {
	_, err := Seal([]byte("x"), []byte("short"))
	require.Error(t, err)
}

func TestDeriveKey_DeterministicAndSaltSensitive(t *testing.T) {
	secret := []byte("device-secret")
	salt := common.GenerateRandByteArray(16)

	a := DeriveKey(secret, salt)
	b := DeriveKey(secret, salt)
	require.Equal(t, a, b)
	require.Len(t, a, 32)

	c := DeriveKey(secret, common.GenerateRandByteArray(16))
	require.NotEqual(t, a, c)
}
