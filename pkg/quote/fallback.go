package quote

import (
	"math/big"

	"evm-swap/pkg/token"
)

// PriceSource supplies independently-known unit prices in USD, keyed by
// token symbol. It backs the estimator only; it is never consulted while an
// on-chain route is viable.
type PriceSource interface {
	UnitPriceUSD(symbol string) (float64, bool)
}

// StaticPrices is a fixed symbol -> USD price map.
type StaticPrices map[string]float64

func (p StaticPrices) UnitPriceUSD(symbol string) (float64, bool) {
	v, ok := p[symbol]
	return v, ok
}

// EstimateFromPrices approximates amountOut from unit prices when no
// on-chain route quotes:
//
//	out ≈ in * price(from) / price(to)
//
// rescaled between the two tokens' precisions. Returns false when either
// price is unknown or non-positive. The result is an estimate, not a
// tradable quote; callers must carry the SourcePriceFallback tag through.
func EstimateFromPrices(from, to token.Token, amountIn *big.Int, prices PriceSource) (*big.Int, bool) {
	if prices == nil || amountIn == nil || amountIn.Sign() <= 0 {
		return nil, false
	}
	priceFrom, okFrom := prices.UnitPriceUSD(from.Symbol)
	priceTo, okTo := prices.UnitPriceUSD(to.Symbol)
	if !okFrom || !okTo || priceFrom <= 0 || priceTo <= 0 {
		return nil, false
	}

	out := new(big.Float).SetInt(amountIn)
	out.Mul(out, big.NewFloat(priceFrom))
	out.Quo(out, big.NewFloat(priceTo))

	// Rescale between precisions: multiply by 10^(toDecimals-fromDecimals).
	shift := int(to.Decimals) - int(from.Decimals)
	if shift != 0 {
		scale := new(big.Float).SetInt(pow10(abs(shift)))
		if shift > 0 {
			out.Mul(out, scale)
		} else {
			out.Quo(out, scale)
		}
	}

	result, _ := out.Int(nil)
	if result.Sign() <= 0 {
		return nil, false
	}
	return result, true
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
