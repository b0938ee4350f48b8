package encryption

import (
	"crypto/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSalt(t *testing.T) []byte {
	t.Helper()
	salt := make([]byte, saltLength)
	_, err := rand.Read(salt)
	require.NoError(t, err)
	return salt
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc, err := New("correct horse battery staple", testSalt(t), nil)
	require.NoError(t, err)
	require.True(t, svc.Enabled())

	plain := "I prefer 2-space indent for this codebase"
	sealed, err := svc.Encrypt(plain)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, ciphertextPrefix))
	assert.NotContains(t, sealed, "indent")

	out, err := svc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestDisabledServiceIsPassThrough(t *testing.T) {
	svc, err := New("", nil, nil)
	require.NoError(t, err)
	assert.False(t, svc.Enabled())

	sealed, err := svc.Encrypt("plain text")
	require.NoError(t, err)
	assert.Equal(t, "plain text", sealed)

	out, err := svc.Decrypt("plain text")
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)
}

func TestNilServiceIsPassThrough(t *testing.T) {
	var svc *Service
	assert.False(t, svc.Enabled())

	sealed, err := svc.Encrypt("plain text")
	require.NoError(t, err)
	assert.Equal(t, "plain text", sealed)
}

func TestDecryptPassesThroughLegacyPlaintext(t *testing.T) {
	svc, err := New("passphrase", testSalt(t), nil)
	require.NoError(t, err)

	// Rows written before encryption was enabled carry no prefix.
	out, err := svc.Decrypt("stored before encryption was on")
	require.NoError(t, err)
	assert.Equal(t, "stored before encryption was on", out)
}

func TestWrongPassphraseFailsDecryption(t *testing.T) {
	salt := testSalt(t)
	svc, err := New("right passphrase", salt, nil)
	require.NoError(t, err)

	sealed, err := svc.Encrypt("secret content")
	require.NoError(t, err)

	other, err := New("wrong passphrase", salt, nil)
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEncryptIsIdempotentOnCiphertext(t *testing.T) {
	svc, err := New("passphrase", testSalt(t), nil)
	require.NoError(t, err)

	sealed, err := svc.Encrypt("content")
	require.NoError(t, err)

	again, err := svc.Encrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, sealed, again)
}

func TestDecryptRejectsCorruptCiphertext(t *testing.T) {
	svc, err := New("passphrase", testSalt(t), nil)
	require.NoError(t, err)

	_, err = svc.Decrypt(ciphertextPrefix + "not-base64!!!")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = svc.Decrypt(ciphertextPrefix + "YWJj") // valid base64, too short
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestNewRejectsBadSalt(t *testing.T) {
	_, err := New("passphrase", []byte("short"), nil)
	assert.ErrorIs(t, err, ErrKeyDerivation)
}

func TestLoadOrCreateSaltPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "encryption.salt")

	first, err := LoadOrCreateSalt(path)
	require.NoError(t, err)
	require.Len(t, first, saltLength)

	second, err := LoadOrCreateSalt(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
