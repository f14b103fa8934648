package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashSecret(t *testing.T) {
	hash, err := HashSecret("level30")
	require.NoError(t, err)
	assert.NotEqual(t, "level30", hash)

	assert.True(t, CheckSecret("level30", hash))
	assert.False(t, CheckSecret("level31", hash))
	assert.False(t, CheckSecret("", hash))
	assert.False(t, CheckSecret("level30", ""))
}
