package quote

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evm-swap/pkg/swaperr"
)

func TestBound(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		amountOut    int64
		toleranceBps uint32
		wantMinOut   int64
	}{
		{
			// 50 bps of 2487525 is 12437.625, truncated to 12437.
			name:         "fifty bps",
			amountOut:    2_487_525,
			toleranceBps: 50,
			wantMinOut:   2_475_088,
		},
		{
			name:         "zero tolerance keeps full output",
			amountOut:    1000,
			toleranceBps: 0,
			wantMinOut:   1000,
		},
		{
			name:         "full tolerance clamps to zero",
			amountOut:    1000,
			toleranceBps: 10000,
			wantMinOut:   0,
		},
		{
			name:         "tiny output with large tolerance",
			amountOut:    3,
			toleranceBps: 9999,
			wantMinOut:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &Quote{AmountOut: big.NewInt(tt.amountOut)}
			bound, err := Bound(q, tt.toleranceBps, now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMinOut, bound.MinAmountOut.Int64())
			assert.Equal(t, now.Add(DeadlineWindow), bound.Deadline)
		})
	}
}

func TestBoundRejectsToleranceAboveDenominator(t *testing.T) {
	q := &Quote{AmountOut: big.NewInt(1000)}
	_, err := Bound(q, 10001, time.Now())
	assert.ErrorIs(t, err, swaperr.ErrInvalidTolerance)
}

func TestBoundNeverNegative(t *testing.T) {
	for _, out := range []int64{0, 1, 2, 999} {
		for _, tol := range []uint32{0, 1, 5000, 9999, 10000} {
			q := &Quote{AmountOut: big.NewInt(out)}
			bound, err := Bound(q, tol, time.Now())
			require.NoError(t, err)
			assert.True(t, bound.MinAmountOut.Sign() >= 0)
			assert.True(t, bound.MinAmountOut.Cmp(q.AmountOut) <= 0)
		}
	}
}
