package encryption

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc, err := NewService([]byte("deployment-secret"))
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt("ghp_supersecrettoken")
	require.NoError(t, err)
	assert.NotContains(t, string(ciphertext), "ghp_supersecrettoken")

	plaintext, err := svc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "ghp_supersecrettoken", plaintext)
}

func TestEncryptProducesDifferentCiphertextEachTime(t *testing.T) {
	svc, err := NewService([]byte("deployment-secret"))
	require.NoError(t, err)

	a, err := svc.Encrypt("value")
	require.NoError(t, err)
	b, err := svc.Encrypt("value")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "random nonce must differ per call")
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	svc, err := NewService([]byte("deployment-secret"))
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt("value")
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = svc.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	svc, err := NewService([]byte("deployment-secret"))
	require.NoError(t, err)

	_, err = svc.Decrypt([]byte("x"))
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestNewServiceRejectsEmptyKey(t *testing.T) {
	_, err := NewService(nil)
	assert.Error(t, err)
}

func TestEncryptToStringDecryptFromStringRoundTrip(t *testing.T) {
	svc, err := NewService([]byte("deployment-secret"))
	require.NoError(t, err)

	encoded, err := svc.EncryptToString("abc123")
	require.NoError(t, err)

	decoded, err := svc.DecryptFromString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "abc123", decoded)
}
