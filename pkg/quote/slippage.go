package quote

import (
	"fmt"
	"math/big"
	"time"

	"evm-swap/pkg/swaperr"
)

// DeadlineWindow is the fixed validity window applied to every bound.
const DeadlineWindow = 20 * time.Minute

const bpsDenominator = 10000

// SlippageBound is the minimum-acceptable output and expiry derived from a
// quote and a tolerance.
type SlippageBound struct {
	MinAmountOut *big.Int
	Deadline     time.Time
}

// Bound converts a quote and a tolerance in basis points into the bound the
// router call will enforce:
//
//	minOut = out - out*toleranceBps/10000, clamped at zero.
func Bound(q *Quote, toleranceBps uint32, now time.Time) (SlippageBound, error) {
	if toleranceBps > bpsDenominator {
		return SlippageBound{}, fmt.Errorf("%w: %d bps", swaperr.ErrInvalidTolerance, toleranceBps)
	}

	cut := new(big.Int).Mul(q.AmountOut, big.NewInt(int64(toleranceBps)))
	cut.Quo(cut, big.NewInt(bpsDenominator))

	minOut := new(big.Int).Sub(q.AmountOut, cut)
	if minOut.Sign() < 0 {
		minOut.SetInt64(0)
	}

	return SlippageBound{
		MinAmountOut: minOut,
		Deadline:     now.Add(DeadlineWindow),
	}, nil
}
