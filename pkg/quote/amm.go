package quote

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"evm-swap/pkg/swaperr"
)

// Constant-product fee: 0.3%, expressed as 997/1000 so the math stays in
// integers and truncates exactly like the pool contract.
var (
	feeNumerator   = big.NewInt(997)
	feeDenominator = big.NewInt(1000)
)

// Reserves is a point-in-time snapshot of one pool edge. Never mutated, only
// superseded by a newer fetch.
type Reserves struct {
	From       common.Address
	To         common.Address
	ReserveIn  *big.Int
	ReserveOut *big.Int
	ObservedAt uint64
}

// ReserveOracle reads the current reserve pair for a route edge. Reads may
// fail or be stale; the quoter treats any failure as the route being
// unavailable for that candidate.
type ReserveOracle interface {
	Reserves(ctx context.Context, from, to common.Address) (Reserves, error)
}

// Source distinguishes a tradable on-chain quote from an informational
// price-feed estimate. Consumers must not treat the two alike.
type Source uint8

const (
	SourceOnchain Source = iota
	SourcePriceFallback
)

func (s Source) String() string {
	switch s {
	case SourceOnchain:
		return "onchain"
	case SourcePriceFallback:
		return "price-fallback"
	default:
		return "unknown"
	}
}

// Quote is the derived result of pricing one input amount over one route. A
// new Quote fully replaces the old one; it is never partially updated.
type Quote struct {
	Route          Route
	AmountIn       *big.Int
	AmountOut      *big.Int
	PriceImpactBps uint32
	Source         Source
}

// Quoter prices routes against live reserves using the constant-product
// invariant.
type Quoter struct {
	oracle ReserveOracle
}

func NewQuoter(oracle ReserveOracle) *Quoter {
	return &Quoter{oracle: oracle}
}

// Quote prices amountIn over the route. A two-hop route is priced as two
// sequential pool visits: the output of edge one becomes the input of edge
// two, each edge against its own reserves. This matches how two independent
// pools are actually executed on-chain, not a combined invariant.
//
// Any reserve-read failure, including a timeout, makes this candidate
// unavailable; the caller moves on to the next one.
func (q *Quoter) Quote(ctx context.Context, route Route, amountIn *big.Int) (*Quote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amount in must be positive")
	}

	path := route.Path()
	amount := new(big.Int).Set(amountIn)
	var first Reserves

	for i := 0; i+1 < len(path); i++ {
		res, err := q.oracle.Reserves(ctx, path[i], path[i+1])
		if err != nil {
			return nil, fmt.Errorf("%w: edge %s -> %s: %v",
				swaperr.ErrRouteUnavailable, path[i].Hex(), path[i+1].Hex(), err)
		}
		if res.ReserveIn == nil || res.ReserveOut == nil ||
			res.ReserveIn.Sign() == 0 || res.ReserveOut.Sign() == 0 {
			return nil, fmt.Errorf("%w: empty reserves on edge %s -> %s",
				swaperr.ErrRouteUnavailable, path[i].Hex(), path[i+1].Hex())
		}
		if i == 0 {
			first = res
		}
		amount = getAmountOut(amount, res.ReserveIn, res.ReserveOut)
	}

	if amount.Sign() == 0 {
		return nil, fmt.Errorf("%w: output rounds to zero", swaperr.ErrRouteUnavailable)
	}

	return &Quote{
		Route:          route,
		AmountIn:       new(big.Int).Set(amountIn),
		AmountOut:      amount,
		PriceImpactBps: priceImpactBps(amountIn, amount, first),
		Source:         SourceOnchain,
	}, nil
}

// getAmountOut applies the constant-product formula with fee:
//
//	out = (in*997*reserveOut) / (reserveIn*1000 + in*997)
//
// Integer division truncates toward zero, matching EVM semantics, so the
// result predicts the pool contract's output exactly.
func getAmountOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	amountInWithFee := new(big.Int).Mul(amountIn, feeNumerator)
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, feeDenominator)
	denominator.Add(denominator, amountInWithFee)
	return numerator.Quo(numerator, denominator)
}

// priceImpactBps computes 10000 * (1 - (out/in)/spot) against the first
// edge's spot price, saturating into uint32 instead of overflowing. Values
// above any warning ceiling are still returned; the caller decides whether
// to warn or block.
func priceImpactBps(amountIn, amountOut *big.Int, first Reserves) uint32 {
	// 10000 - 10000*out*reserveIn/(in*reserveOut), floored at zero.
	num := new(big.Int).Mul(amountOut, first.ReserveIn)
	num.Mul(num, big.NewInt(10000))
	den := new(big.Int).Mul(amountIn, first.ReserveOut)
	if den.Sign() == 0 {
		return math.MaxUint32
	}
	ratio := num.Quo(num, den)

	impact := new(big.Int).Sub(big.NewInt(10000), ratio)
	if impact.Sign() < 0 {
		return 0
	}
	if !impact.IsUint64() || impact.Uint64() > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(impact.Uint64())
}
