package resets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashToken(t *testing.T) {
	assert.Equal(t,
		"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		hashToken("test"))
}

func TestRandomToken(t *testing.T) {
	a, err := randomToken()
	require.NoError(t, err)
	b, err := randomToken()
	require.NoError(t, err)

	assert.Len(t, a, tokenBytes*2)
	assert.NotEqual(t, a, b)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "password_resets:jane@example.com", tokenKey("jane@example.com"))
	assert.NotEqual(t, tokenKey("jane@example.com"), throttleKey("jane@example.com"))
}
