package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHealthCacheEmptyAddr(t *testing.T) {
	c := NewHealthCache("", "", 0, nil)
	assert.Nil(t, c)
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *HealthCache
	ctx := context.Background()

	score, ok := c.Get(ctx, "project-1", 3)
	assert.False(t, ok)
	assert.Equal(t, 0, score)

	// Set, Ping and Close are no-ops on a nil cache.
	c.Set(ctx, "project-1", 3, 80)
	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Close())
}

func TestKeyIncludesVersion(t *testing.T) {
	c := &HealthCache{}

	k1 := c.key("project-1", 1)
	k2 := c.key("project-1", 2)

	assert.Equal(t, "workledger:health:project-1:1", k1)
	assert.NotEqual(t, k1, k2)
}
