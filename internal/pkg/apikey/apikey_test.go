package apikey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToken(t *testing.T) {
	t.Run("strips the configured prefix", func(t *testing.T) {
		secret, ok := ParseToken("sdc_abc123", "sdc_")
		assert.True(t, ok)
		assert.Equal(t, "abc123", secret)
	})

	t.Run("rejects tokens without the prefix", func(t *testing.T) {
		_, ok := ParseToken("abc123", "sdc_")
		assert.False(t, ok)
	})

	t.Run("empty prefix accepts any token", func(t *testing.T) {
		secret, ok := ParseToken("abc123", "")
		assert.True(t, ok)
		assert.Equal(t, "abc123", secret)
	})
}

func TestHMAC256Hex(t *testing.T) {
	a := HMAC256Hex("pepper", "secret")
	b := HMAC256Hex("pepper", "secret")
	assert.Equal(t, a, b, "digest must be deterministic")
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, HMAC256Hex("other-pepper", "secret"))
	assert.NotEqual(t, a, HMAC256Hex("pepper", "other-secret"))
}

func TestNewSecret(t *testing.T) {
	s1, err := NewSecret()
	require.NoError(t, err)
	s2, err := NewSecret()
	require.NoError(t, err)

	assert.Len(t, s1, 48)
	assert.NotEqual(t, s1, s2)
}
