package chaingateway

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEIP1559FeeParams(t *testing.T) {
	maxFee, maxPriority := EIP1559FeeParams(big.NewInt(20_000_000_000)) // 20 gwei base fee

	assert.Equal(t, big.NewInt(1_500_000_000), maxPriority)
	assert.Equal(t, big.NewInt(41_500_000_000), maxFee) // 2*20gwei + 1.5gwei
}

func TestEIP1559FeeParams_NilBaseFee(t *testing.T) {
	maxFee, maxPriority := EIP1559FeeParams(nil)

	assert.Equal(t, big.NewInt(1_500_000_000), maxPriority)
	assert.Equal(t, big.NewInt(1_500_000_000), maxFee)
}

func TestTruncateReason(t *testing.T) {
	short := "oracle price deviates from AMM by 12%"
	assert.Equal(t, short, truncateReason(short))

	long := make([]byte, 250)
	for i := range long {
		long[i] = 'x'
	}
	truncated := truncateReason(string(long))
	assert.Len(t, truncated, 200)
}

func TestIsAlreadyPaused(t *testing.T) {
	assert.True(t, isAlreadyPaused(assertErr("simulate pause: execution reverted: Already paused")))
	assert.True(t, isAlreadyPaused(assertErr("simulate blockLiquidations: execution reverted: Already blocked")))
	assert.False(t, isAlreadyPaused(assertErr("simulate pause: execution reverted: insufficient balance")))
}

type stringErr string

func (e stringErr) Error() string { return string(e) }

func assertErr(s string) error { return stringErr(s) }
