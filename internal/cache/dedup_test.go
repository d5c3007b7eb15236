package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemDedup_SeenBlock(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	assert.False(t, c.SeenBlock(ctx, 100))
	assert.True(t, c.SeenBlock(ctx, 100))
	assert.False(t, c.SeenBlock(ctx, 101))
}

func TestMemDedup_SeenSignature(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	sig := ContentHash(1.0, 2.0, 3, 4)
	assert.False(t, c.SeenSignature(ctx, sig))
	assert.True(t, c.SeenSignature(ctx, sig))
}

func TestMemDedup_SeenLiquidation_CapsAtThousand(t *testing.T) {
	ctx := context.Background()
	c := NewMemory().(*memDedup)

	for i := 0; i < 1000; i++ {
		assert.False(t, c.SeenLiquidation(ctx, "0xabc", uint64(i)))
	}
	// At the cap the whole set is cleared before block 1000 is added, so
	// block 0 is seen as new again.
	assert.False(t, c.SeenLiquidation(ctx, "0xabc", 1000))
	assert.False(t, c.SeenLiquidation(ctx, "0xabc", 0))
	assert.LessOrEqual(t, len(c.liquidations), liquidationCacheCap)
}

func TestContentHash_Deterministic(t *testing.T) {
	a := ContentHash(1800.0, 1799.5, 2, 3)
	b := ContentHash(1800.0, 1799.5, 2, 3)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestLiquidationKey(t *testing.T) {
	assert.Equal(t, "liq_0xabc_42", LiquidationKey("0xabc", 42))
}
