package txbuild

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"evm-swap/pkg/quote"
	"evm-swap/pkg/swaperr"
	"evm-swap/pkg/token"
)

// Conservative gas hints per call kind; refined by estimation before
// submission.
const (
	gasHintWrap   = 50_000
	gasHintUnwrap = 60_000
	gasHintSwap   = 250_000
)

// UnsignedTx is the concrete call payload for one trade. Immutable once
// built and consumed exactly once by simulation or execution.
type UnsignedTx struct {
	Kind    CallKind
	To      common.Address
	Data    []byte
	Value   *big.Int
	GasHint uint64
}

// Builder encodes trades against a fixed router and wrapped-native contract.
type Builder struct {
	router    common.Address
	wnative   common.Address
	routerABI abi.ABI
	wrapABI   abi.ABI
}

// NewBuilder parses the ABI fragments once and binds the contract addresses.
func NewBuilder(router, wrappedNative common.Address) (*Builder, error) {
	routerABI, err := abi.JSON(strings.NewReader(RouterABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}
	wrapABI, err := abi.JSON(strings.NewReader(WrappedNativeABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse wrapped-native ABI: %w", err)
	}
	return &Builder{
		router:    router,
		wnative:   wrappedNative,
		routerABI: routerABI,
		wrapABI:   wrapABI,
	}, nil
}

// Build maps the trade onto exactly one CallKind and encodes it. The variant
// is chosen by the token pair's closed shape; any combination the builder
// does not recognize fails with ErrUnsupportedRouteShape.
func (b *Builder) Build(from, to token.Token, route quote.Route, amountIn *big.Int, bound quote.SlippageBound, recipient common.Address) (*UnsignedTx, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount", swaperr.ErrUnsupportedRouteShape)
	}

	switch {
	case from.Native && to.WrappedNative:
		return b.buildWrap(amountIn)

	case from.WrappedNative && to.Native:
		return b.buildUnwrap(amountIn)

	case from.Native && !to.Native:
		return b.buildSwap(CallSwapExactNativeForTokens, route, amountIn, bound, recipient)

	case !from.Native && to.Native:
		return b.buildSwap(CallSwapExactTokensForNative, route, amountIn, bound, recipient)

	case !from.Native && !to.Native:
		return b.buildSwap(CallSwapExactTokensForTokens, route, amountIn, bound, recipient)

	default:
		return nil, fmt.Errorf("%w: %s -> %s", swaperr.ErrUnsupportedRouteShape, from.Symbol, to.Symbol)
	}
}

// buildWrap emits the zero-argument payable deposit, carrying the amount as
// call value.
func (b *Builder) buildWrap(amountIn *big.Int) (*UnsignedTx, error) {
	data, err := b.wrapABI.Pack("deposit")
	if err != nil {
		return nil, fmt.Errorf("failed to encode deposit: %w", err)
	}
	return &UnsignedTx{
		Kind:    CallWrapDeposit,
		To:      b.wnative,
		Data:    data,
		Value:   new(big.Int).Set(amountIn),
		GasHint: gasHintWrap,
	}, nil
}

func (b *Builder) buildUnwrap(amountIn *big.Int) (*UnsignedTx, error) {
	data, err := b.wrapABI.Pack("withdraw", amountIn)
	if err != nil {
		return nil, fmt.Errorf("failed to encode withdraw: %w", err)
	}
	return &UnsignedTx{
		Kind:    CallUnwrapWithdraw,
		To:      b.wnative,
		Data:    data,
		Value:   big.NewInt(0),
		GasHint: gasHintUnwrap,
	}, nil
}

func (b *Builder) buildSwap(kind CallKind, route quote.Route, amountIn *big.Int, bound quote.SlippageBound, recipient common.Address) (*UnsignedTx, error) {
	path := route.Path()
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: path of %d tokens", swaperr.ErrUnsupportedRouteShape, len(path))
	}
	if bound.MinAmountOut == nil {
		return nil, fmt.Errorf("%w: missing slippage bound", swaperr.ErrUnsupportedRouteShape)
	}

	// A native leg trades through the wrapper contract: the path must start
	// (native in) or end (native out) at the wrapped-native address.
	switch kind {
	case CallSwapExactNativeForTokens:
		if path[0] != b.wnative {
			return nil, fmt.Errorf("%w: native-in path must start at wrapped native", swaperr.ErrUnsupportedRouteShape)
		}
	case CallSwapExactTokensForNative:
		if path[len(path)-1] != b.wnative {
			return nil, fmt.Errorf("%w: native-out path must end at wrapped native", swaperr.ErrUnsupportedRouteShape)
		}
	}

	deadline := big.NewInt(bound.Deadline.Unix())
	value := big.NewInt(0)

	var (
		data []byte
		err  error
	)
	switch kind {
	case CallSwapExactNativeForTokens:
		// Input amount travels as call value, not as an argument.
		data, err = b.routerABI.Pack("swapExactETHForTokens", bound.MinAmountOut, path, recipient, deadline)
		value = new(big.Int).Set(amountIn)
	case CallSwapExactTokensForNative:
		data, err = b.routerABI.Pack("swapExactTokensForETH", amountIn, bound.MinAmountOut, path, recipient, deadline)
	case CallSwapExactTokensForTokens:
		data, err = b.routerABI.Pack("swapExactTokensForTokens", amountIn, bound.MinAmountOut, path, recipient, deadline)
	default:
		return nil, fmt.Errorf("%w: %s", swaperr.ErrUnsupportedRouteShape, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
	}

	return &UnsignedTx{
		Kind:    kind,
		To:      b.router,
		Data:    data,
		Value:   value,
		GasHint: gasHintSwap,
	}, nil
}
