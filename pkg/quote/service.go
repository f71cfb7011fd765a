package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"evm-swap/pkg/swaperr"
	"evm-swap/pkg/token"
)

// Service resolves a pair into candidate routes, prices them in priority
// order, and falls back to a price-feed estimate when nothing on-chain
// quotes. It is the single entry point for producing a Quote.
type Service struct {
	registry *token.Registry
	quoter   *Quoter
	prices   PriceSource
	log      *zap.Logger
}

// NewService wires the quoting pipeline. prices may be nil when no price
// feed is configured; log may be nil.
func NewService(registry *token.Registry, quoter *Quoter, prices PriceSource, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{registry: registry, quoter: quoter, prices: prices, log: log}
}

// QuoteExactIn produces the quote for swapping amountIn of from into to.
//
// The wrap/unwrap pair converts 1:1 without a pool lookup; it is a
// conversion, not a trade. Otherwise candidates are tried in priority order
// and the first that quotes wins. When every candidate fails, the price
// fallback produces an informational estimate, or the resolution terminates
// with ErrNoRouteAndNoPriceData.
func (s *Service) QuoteExactIn(ctx context.Context, from, to token.Token, amountIn *big.Int) (*Quote, error) {
	if from.Same(to) {
		return nil, fmt.Errorf("%w: %s -> %s", swaperr.ErrInvalidPair, from.Symbol, to.Symbol)
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amount in must be positive")
	}

	if s.isWrapPair(from, to) {
		route, err := NewRoute(s.wrapEdge(from, to))
		if err != nil {
			return nil, err
		}
		return &Quote{
			Route:          route,
			AmountIn:       new(big.Int).Set(amountIn),
			AmountOut:      new(big.Int).Set(amountIn),
			PriceImpactBps: 0,
			Source:         SourceOnchain,
		}, nil
	}

	wrapped := s.registry.WrappedNative()
	fromAddr := PoolAddress(from, wrapped)
	toAddr := PoolAddress(to, wrapped)

	candidates, err := Candidates(fromAddr, toAddr, wrapped.Address)
	if err != nil {
		return nil, err
	}

	for _, route := range candidates {
		q, err := s.quoter.Quote(ctx, route, amountIn)
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, swaperr.ErrRouteUnavailable) {
			return nil, err
		}
		s.log.Debug("candidate route unavailable",
			zap.String("route", route.String()),
			zap.Error(err))
	}

	if out, ok := EstimateFromPrices(from, to, amountIn, s.prices); ok {
		s.log.Info("no on-chain route, using price-feed estimate",
			zap.String("from", from.Symbol),
			zap.String("to", to.Symbol))
		route, err := NewRoute(fromAddr, toAddr)
		if err != nil {
			return nil, err
		}
		return &Quote{
			Route:          route,
			AmountIn:       new(big.Int).Set(amountIn),
			AmountOut:      out,
			PriceImpactBps: 0,
			Source:         SourcePriceFallback,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s -> %s", swaperr.ErrNoRouteAndNoPriceData, from.Symbol, to.Symbol)
}

// isWrapPair reports whether the pair is {native, wrapped-native} in either
// direction.
func (s *Service) isWrapPair(from, to token.Token) bool {
	return (from.Native && to.WrappedNative) || (from.WrappedNative && to.Native)
}

// wrapEdge returns the pseudo-route endpoints for a conversion: the zero
// address stands in for the native side, the wrapper contract for the other.
func (s *Service) wrapEdge(from, to token.Token) (a, b common.Address) {
	wrapped := s.registry.WrappedNative()
	if from.Native {
		return common.Address{}, wrapped.Address
	}
	return wrapped.Address, common.Address{}
}
