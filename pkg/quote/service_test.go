package quote

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evm-swap/pkg/swaperr"
	"evm-swap/pkg/token"
)

var (
	testWETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testUSDC = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	testDAI  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

func testRegistry(t *testing.T) *token.Registry {
	t.Helper()
	r, err := token.NewRegistry([]token.Token{
		{Symbol: "ETH", Decimals: 18, Native: true},
		{Symbol: "WETH", Address: testWETH, Decimals: 18, WrappedNative: true},
		{Symbol: "USDC", Address: testUSDC, Decimals: 6},
		{Symbol: "DAI", Address: testDAI, Decimals: 18},
	})
	require.NoError(t, err)
	return r
}

func TestServiceSamePairRejected(t *testing.T) {
	reg := testRegistry(t)
	svc := NewService(reg, NewQuoter(&fakeOracle{}), nil, nil)

	usdc, _ := reg.Lookup("USDC")
	_, err := svc.QuoteExactIn(context.Background(), usdc, usdc, big.NewInt(1))
	assert.ErrorIs(t, err, swaperr.ErrInvalidPair)
}

func TestServiceWrapPairIsOneToOne(t *testing.T) {
	reg := testRegistry(t)
	// No oracle data at all: a conversion must not touch pools.
	svc := NewService(reg, NewQuoter(&fakeOracle{}), nil, nil)

	eth, _ := reg.Lookup("ETH")
	weth, _ := reg.Lookup("WETH")
	in := new(big.Int).Mul(big.NewInt(5), pow10(18))

	for _, pair := range []struct{ from, to token.Token }{{eth, weth}, {weth, eth}} {
		q, err := svc.QuoteExactIn(context.Background(), pair.from, pair.to, in)
		require.NoError(t, err)
		assert.Equal(t, in, q.AmountOut)
		assert.Equal(t, uint32(0), q.PriceImpactBps)
		assert.Equal(t, SourceOnchain, q.Source)
	}
}

func TestServiceDirectRouteWins(t *testing.T) {
	reg := testRegistry(t)
	oracle := &fakeOracle{reserves: map[string]Reserves{
		edgeKey(testUSDC, testDAI): {
			ReserveIn:  big.NewInt(1_000_000),
			ReserveOut: big.NewInt(2_500_000_000),
		},
		// The hub route also quotes, but must never be consulted.
		edgeKey(testUSDC, testWETH): {
			ReserveIn:  big.NewInt(1_000_000),
			ReserveOut: big.NewInt(1_000_000),
		},
		edgeKey(testWETH, testDAI): {
			ReserveIn:  big.NewInt(1_000_000),
			ReserveOut: big.NewInt(1_000_000),
		},
	}}
	svc := NewService(reg, NewQuoter(oracle), nil, nil)

	usdc, _ := reg.Lookup("USDC")
	dai, _ := reg.Lookup("DAI")
	q, err := svc.QuoteExactIn(context.Background(), usdc, dai, big.NewInt(1000))
	require.NoError(t, err)

	assert.Equal(t, int64(2_487_525), q.AmountOut.Int64())
	assert.Equal(t, 1, q.Route.Hops())
	assert.Equal(t, 1, oracle.calls, "direct quote must stop the candidate search")
}

func TestServiceFallsBackToHubRoute(t *testing.T) {
	reg := testRegistry(t)
	oracle := &fakeOracle{reserves: map[string]Reserves{
		edgeKey(testUSDC, testWETH): {
			ReserveIn:  big.NewInt(1_000_000),
			ReserveOut: big.NewInt(1_000_000),
		},
		edgeKey(testWETH, testDAI): {
			ReserveIn:  big.NewInt(1_000_000),
			ReserveOut: big.NewInt(1_000_000),
		},
	}}
	svc := NewService(reg, NewQuoter(oracle), nil, nil)

	usdc, _ := reg.Lookup("USDC")
	dai, _ := reg.Lookup("DAI")
	q, err := svc.QuoteExactIn(context.Background(), usdc, dai, big.NewInt(1000))
	require.NoError(t, err)

	assert.Equal(t, 2, q.Route.Hops())
	assert.Equal(t, SourceOnchain, q.Source)
}

func TestServiceNativeRoutesThroughWrapper(t *testing.T) {
	reg := testRegistry(t)
	oracle := &fakeOracle{reserves: map[string]Reserves{
		edgeKey(testWETH, testUSDC): {
			ReserveIn:  big.NewInt(1_000_000),
			ReserveOut: big.NewInt(2_500_000_000),
		},
	}}
	svc := NewService(reg, NewQuoter(oracle), nil, nil)

	eth, _ := reg.Lookup("ETH")
	usdc, _ := reg.Lookup("USDC")
	q, err := svc.QuoteExactIn(context.Background(), eth, usdc, big.NewInt(1000))
	require.NoError(t, err)

	// ETH is pool-addressed as WETH, so the WETH/USDC edge serves it.
	assert.Equal(t, testWETH, q.Route.First())
	assert.Equal(t, int64(2_487_525), q.AmountOut.Int64())
}

func TestServicePriceFallbackTagged(t *testing.T) {
	reg := testRegistry(t)
	prices := StaticPrices{"USDC": 1, "DAI": 1}
	svc := NewService(reg, NewQuoter(&fakeOracle{}), prices, nil)

	usdc, _ := reg.Lookup("USDC")
	dai, _ := reg.Lookup("DAI")
	in := new(big.Int).Mul(big.NewInt(100), pow10(6))

	q, err := svc.QuoteExactIn(context.Background(), usdc, dai, in)
	require.NoError(t, err)

	assert.Equal(t, SourcePriceFallback, q.Source, "estimate must carry the fallback tag")
	want := new(big.Int).Mul(big.NewInt(100), pow10(18))
	assert.Equal(t, want, q.AmountOut)
}

func TestServiceNoRouteAndNoPriceData(t *testing.T) {
	reg := testRegistry(t)
	svc := NewService(reg, NewQuoter(&fakeOracle{}), nil, nil)

	usdc, _ := reg.Lookup("USDC")
	dai, _ := reg.Lookup("DAI")
	_, err := svc.QuoteExactIn(context.Background(), usdc, dai, big.NewInt(1000))
	assert.ErrorIs(t, err, swaperr.ErrNoRouteAndNoPriceData)
}

func TestServiceRejectsNonPositiveAmount(t *testing.T) {
	reg := testRegistry(t)
	svc := NewService(reg, NewQuoter(&fakeOracle{}), nil, nil)

	usdc, _ := reg.Lookup("USDC")
	dai, _ := reg.Lookup("DAI")

	_, err := svc.QuoteExactIn(context.Background(), usdc, dai, nil)
	assert.Error(t, err)

	_, err = svc.QuoteExactIn(context.Background(), usdc, dai, big.NewInt(0))
	assert.Error(t, err)
}
