package crypto_test

import (
	"strings"
	"testing"

	"github.com/keyward/keyward/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestGenerateSecret_Prefixes(t *testing.T) {
	live, err := crypto.GenerateSecret("live")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(live, "sk_live_"))

	test, err := crypto.GenerateSecret("test")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(test, "sk_test_"))

	// 32 random bytes hex-encoded after the prefix.
	assert.Len(t, strings.TrimPrefix(live, "sk_live_"), 64)
}

func TestGenerateSecret_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, err := crypto.GenerateSecret("test")
		require.NoError(t, err)
		assert.False(t, seen[s])
		seen[s] = true
	}
}

func TestSecretHash_Deterministic(t *testing.T) {
	h1 := crypto.SecretHash("sk_test_abc")
	h2 := crypto.SecretHash("sk_test_abc")
	h3 := crypto.SecretHash("sk_test_abd")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := crypto.NewCipher(testKey())
	require.NoError(t, err)

	sealed, err := c.Encrypt([]byte("sk_live_secret"))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "sk_live_secret")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("sk_live_secret"), plain)
}

func TestCipher_NonceVaries(t *testing.T) {
	c, err := crypto.NewCipher(testKey())
	require.NoError(t, err)

	a, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCipher_TamperFails(t *testing.T) {
	c, err := crypto.NewCipher(testKey())
	require.NoError(t, err)

	sealed, err := c.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = c.Decrypt("x" + sealed[1:])
	assert.Error(t, err)

	_, err = c.Decrypt("not-base64!!!")
	assert.Error(t, err)
}

func TestCipher_WrongKeyFails(t *testing.T) {
	c1, err := crypto.NewCipher(testKey())
	require.NoError(t, err)
	c2, err := crypto.NewCipher([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)

	sealed, err := c1.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = c2.Decrypt(sealed)
	assert.Error(t, err)
}

func TestSessionCipher_BoundToToken(t *testing.T) {
	ca, err := crypto.NewSessionCipher("token-a")
	require.NoError(t, err)
	cb, err := crypto.NewSessionCipher("token-b")
	require.NoError(t, err)

	sealed, err := ca.Encrypt([]byte("revealed-secret"))
	require.NoError(t, err)

	// Only a cipher derived from the same session token can open it.
	_, err = cb.Decrypt(sealed)
	assert.Error(t, err)

	ca2, err := crypto.NewSessionCipher("token-a")
	require.NoError(t, err)
	plain, err := ca2.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("revealed-secret"), plain)
}

func TestDisplayPrefix(t *testing.T) {
	assert.Equal(t, "sk_test_abcd...", crypto.DisplayPrefix("sk_test_abcdef0123456789"))
	assert.Equal(t, "short", crypto.DisplayPrefix("short"))
}
