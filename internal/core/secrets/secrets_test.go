package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomGenerator_TokenLengthAndUniqueness(t *testing.T) {
	g := RandomGenerator{}

	a, err := g.Token(32)
	require.NoError(t, err)
	b, err := g.Token(32)
	require.NoError(t, err)

	// 32 bytes base64url without padding is 43 characters.
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestRandomGenerator_ZeroFallsBackToDefault(t *testing.T) {
	g := RandomGenerator{}
	tok, err := g.Token(0)
	require.NoError(t, err)
	assert.Len(t, tok, 43)
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder(""))
	assert.True(t, IsPlaceholder("  changeme "))
	assert.True(t, IsPlaceholder("CHANGE-ME"))
	assert.True(t, IsPlaceholder("placeholder"))

	assert.False(t, IsPlaceholder("s3cureP@ss"))
	assert.False(t, IsPlaceholder("hRk2..generated..9f"))
}
