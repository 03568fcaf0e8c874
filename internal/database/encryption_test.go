package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-encryption-secret-at-least-32-chars"

func enableEncryption(t *testing.T) {
	t.Helper()
	t.Setenv("MAILPROBE_ENABLE_ENCRYPTION", "true")
	t.Setenv("MAILPROBE_ENCRYPTION_SECRET", testSecret)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enableEncryption(t)

	enc, err := NewEncryptor()
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("relay-secret")
	require.NoError(t, err)
	assert.NotEqual(t, "relay-secret", ciphertext)

	plaintext, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "relay-secret", plaintext)
}

func TestEncryptRandomizedNonce(t *testing.T) {
	enableEncryption(t)

	enc, err := NewEncryptor()
	require.NoError(t, err)

	first, err := enc.Encrypt("same input")
	require.NoError(t, err)
	second, err := enc.Encrypt("same input")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestEncryptForLookupDeterministic(t *testing.T) {
	enableEncryption(t)

	enc, err := NewEncryptor()
	require.NoError(t, err)

	first, err := enc.EncryptForLookup("target@example.com")
	require.NoError(t, err)
	second, err := enc.EncryptForLookup("target@example.com")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotEqual(t, "target@example.com", first)

	other, err := enc.EncryptForLookup("other@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	plaintext, err := enc.Decrypt(first)
	require.NoError(t, err)
	assert.Equal(t, "target@example.com", plaintext)
}

func TestEncryptionDisabledPassthrough(t *testing.T) {
	t.Setenv("MAILPROBE_ENABLE_ENCRYPTION", "false")

	enc, err := NewEncryptor()
	require.NoError(t, err)

	out, err := enc.EncryptIfEnabled("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	out, err = enc.EncryptForLookupIfEnabled("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	out, err = enc.DecryptIfEnabled("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
}

func TestNewEncryptorRequiresSecret(t *testing.T) {
	t.Setenv("MAILPROBE_ENABLE_ENCRYPTION", "true")
	t.Setenv("MAILPROBE_ENCRYPTION_SECRET", "")

	_, err := NewEncryptor()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAILPROBE_ENCRYPTION_SECRET")
}

func TestNewEncryptorRejectsShortSecret(t *testing.T) {
	t.Setenv("MAILPROBE_ENABLE_ENCRYPTION", "true")
	t.Setenv("MAILPROBE_ENCRYPTION_SECRET", "too-short")

	_, err := NewEncryptor()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 characters")
}

func TestDecryptRejectsGarbage(t *testing.T) {
	enableEncryption(t)

	enc, err := NewEncryptor()
	require.NoError(t, err)

	_, err = enc.Decrypt("not base64 !!!")
	assert.Error(t, err)

	_, err = enc.Decrypt("c2hvcnQ=")
	assert.Error(t, err)
}

func TestRelayCredentialsEncryptedAtRest(t *testing.T) {
	enableEncryption(t)

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := New(dbPath)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, db.Close())
	}()

	ctx := context.Background()
	relay := sampleRelay()
	require.NoError(t, db.CreateRelay(ctx, relay))

	var storedUsername, storedPassword string
	err = db.db.QueryRowContext(ctx,
		`SELECT username, password FROM relays WHERE id = ?`, relay.ID).
		Scan(&storedUsername, &storedPassword)
	require.NoError(t, err)
	assert.NotEqual(t, "probe@relay.example.com", storedUsername)
	assert.NotEqual(t, "relay-secret", storedPassword)

	// Reads still return the plaintext credentials.
	got, err := db.GetRelay(ctx, relay.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "probe@relay.example.com", got.Username)
	assert.Equal(t, "relay-secret", got.Password)
}
