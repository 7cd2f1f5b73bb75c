package secrets

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	codec, err := NewCodec(key)
	require.NoError(t, err)
	return codec
}

// TestPurpose: Validates that every secret string survives an encrypt/decrypt round trip.
// Scope: Unit Test
// Security: Credential confidentiality at rest
// Expected: Decrypt(Encrypt(x)) == x, and the envelope never contains the plaintext.
// Test Case ID: SEC-01
func TestCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	inputs := []string{
		"",
		"EAAG-access-token",
		"app:secret:with:colons",
		"ünïcødé ✓",
		strings.Repeat("x", 4096),
	}

	for _, in := range inputs {
		envelope, err := codec.Encrypt(in)
		require.NoError(t, err)
		assert.Len(t, strings.Split(envelope, ":"), 3)
		if in != "" {
			assert.NotContains(t, envelope, in)
		}

		out, err := codec.Decrypt(envelope)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestCodec_RandomIV(t *testing.T) {
	codec := newTestCodec(t)

	a, err := codec.Encrypt("same")
	require.NoError(t, err)
	b, err := codec.Encrypt("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

// TestPurpose: Validates that a tampered authentication tag is rejected instead of yielding altered plaintext.
// Scope: Unit Test
// Security: Integrity of encrypted credentials (fail closed)
// Expected: Decrypt returns ErrDecryptionFailed and an empty string.
// Test Case ID: SEC-02
func TestCodec_TamperedTagFails(t *testing.T) {
	codec := newTestCodec(t)

	envelope, err := codec.Encrypt("EAAG-access-token")
	require.NoError(t, err)

	parts := strings.Split(envelope, ":")
	tag, err := hex.DecodeString(parts[1])
	require.NoError(t, err)
	tag[0] ^= 0x01
	parts[1] = hex.EncodeToString(tag)

	out, err := codec.Decrypt(strings.Join(parts, ":"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	assert.Empty(t, out)
}

func TestCodec_TamperedCiphertextFails(t *testing.T) {
	codec := newTestCodec(t)

	envelope, err := codec.Encrypt("EAAG-access-token")
	require.NoError(t, err)

	parts := strings.Split(envelope, ":")
	ct, err := hex.DecodeString(parts[2])
	require.NoError(t, err)
	ct[len(ct)-1] ^= 0x80
	parts[2] = hex.EncodeToString(ct)

	_, err = codec.Decrypt(strings.Join(parts, ":"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestCodec_MalformedEnvelope(t *testing.T) {
	codec := newTestCodec(t)

	cases := map[string]string{
		"empty":          "",
		"two segments":   "aa:bb",
		"four segments":  "aa:bb:cc:dd",
		"non-hex iv":     "zz:" + strings.Repeat("00", tagSize) + ":00",
		"short iv":       "0011:" + strings.Repeat("00", tagSize) + ":00",
		"short tag":      strings.Repeat("00", ivSize) + ":00:00",
		"non-hex cipher": strings.Repeat("00", ivSize) + ":" + strings.Repeat("00", tagSize) + ":xyz",
	}

	for name, envelope := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Decrypt(envelope)
			assert.ErrorIs(t, err, ErrMalformedEnvelope)
		})
	}
}

func TestCodec_WrongKeyFails(t *testing.T) {
	a := newTestCodec(t)
	b := newTestCodec(t)

	envelope, err := a.Encrypt("secret")
	require.NoError(t, err)

	_, err = b.Decrypt(envelope)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestParseKey(t *testing.T) {
	t.Run("hex key used verbatim", func(t *testing.T) {
		raw := strings.Repeat("ab", KeySize)
		key, generated, err := ParseKey(raw)
		require.NoError(t, err)
		assert.False(t, generated)
		assert.Equal(t, raw, hex.EncodeToString(key))
	})

	t.Run("passphrase derived deterministically", func(t *testing.T) {
		k1, _, err := ParseKey("correct horse battery staple")
		require.NoError(t, err)
		k2, _, err := ParseKey("correct horse battery staple")
		require.NoError(t, err)
		assert.Len(t, k1, KeySize)
		assert.Equal(t, k1, k2)
	})

	t.Run("empty material generates a key", func(t *testing.T) {
		key, generated, err := ParseKey("  ")
		require.NoError(t, err)
		assert.True(t, generated)
		assert.Len(t, key, KeySize)
	})

	t.Run("codec rejects short keys", func(t *testing.T) {
		_, err := NewCodec([]byte("short"))
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestIsEnvelope(t *testing.T) {
	codec := newTestCodec(t)
	envelope, err := codec.Encrypt("value")
	require.NoError(t, err)

	assert.True(t, IsEnvelope(envelope))
	assert.False(t, IsEnvelope("EAAG-plain-token"))
}
