package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_Unique(t *testing.T) {
	require.NoError(t, Initialize(1))

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewID()
		require.NotEmpty(t, id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestInitialize_FirstCallWins(t *testing.T) {
	require.NoError(t, Initialize(1))

	// A second call is a no-op, not an error
	assert.NoError(t, Initialize(2))
	assert.NotEmpty(t, NewID())
}
