package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evm-swap/pkg/quote"
	"evm-swap/pkg/sim"
	"evm-swap/pkg/swaperr"
	"evm-swap/pkg/token"
	"evm-swap/pkg/txbuild"
)

var (
	routerAddr = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	wethAddr   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr   = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	daiAddr    = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	ownerAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

type fakeOracle struct {
	mu       sync.Mutex
	reserves map[string]quote.Reserves
	// gate, when set, blocks each read until released. Used to hold a
	// recomputation in flight.
	gate chan struct{}
}

func edgeKey(from, to common.Address) string { return from.Hex() + "->" + to.Hex() }

func (f *fakeOracle) set(from, to common.Address, reserveIn, reserveOut int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserves == nil {
		f.reserves = make(map[string]quote.Reserves)
	}
	f.reserves[edgeKey(from, to)] = quote.Reserves{
		From:       from,
		To:         to,
		ReserveIn:  big.NewInt(reserveIn),
		ReserveOut: big.NewInt(reserveOut),
	}
}

func (f *fakeOracle) Reserves(ctx context.Context, from, to common.Address) (quote.Reserves, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.reserves[edgeKey(from, to)]
	if !ok {
		return quote.Reserves{}, fmt.Errorf("no pool")
	}
	return res, nil
}

type fakeBackend struct {
	mu            sync.Mutex
	allowance     *big.Int
	allowanceErr  error
	balance       *big.Int
	nativeBalance *big.Int
	amountsOut    []*big.Int
	amountsErr    error
	submitHash    common.Hash
	submitErr     error
	submitGate    chan struct{}
	receiptStatus uint64
	submitted     []*txbuild.UnsignedTx
}

func newFakeBackend() *fakeBackend {
	plenty := new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
	return &fakeBackend{
		allowance:     new(big.Int).Set(plenty),
		balance:       new(big.Int).Set(plenty),
		nativeBalance: new(big.Int).Set(plenty),
		submitHash:    common.HexToHash("0xdeadbeef"),
		receiptStatus: ethtypes.ReceiptStatusSuccessful,
	}
}

func (f *fakeBackend) Allowance(ctx context.Context, tokenAddr, owner, spender common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allowanceErr != nil {
		return nil, f.allowanceErr
	}
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeBackend) BalanceOf(ctx context.Context, tokenAddr, account common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeBackend) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.nativeBalance), nil
}

func (f *fakeBackend) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.amountsErr != nil {
		return nil, f.amountsErr
	}
	if f.amountsOut != nil {
		return f.amountsOut, nil
	}
	// Echo an output that always clears any bound.
	return []*big.Int{amountIn, new(big.Int).Lsh(amountIn, 32)}, nil
}

func (f *fakeBackend) Submit(ctx context.Context, tx *txbuild.UnsignedTx) (common.Hash, error) {
	if f.submitGate != nil {
		<-f.submitGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	f.submitted = append(f.submitted, tx)
	return f.submitHash, nil
}

func (f *fakeBackend) WaitReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptStatus != ethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: status 0", swaperr.ErrExecutionReverted)
	}
	return &ethtypes.Receipt{Status: f.receiptStatus, TxHash: hash}, nil
}

func (f *fakeBackend) Router() common.Address { return routerAddr }

type fixture struct {
	oracle  *fakeOracle
	backend *fakeBackend
	ctrl    *Controller
	states  chan Intent

	eth, weth, usdc, dai token.Token
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	registry, err := token.NewRegistry([]token.Token{
		{Symbol: "ETH", Decimals: 18, Native: true},
		{Symbol: "WETH", Address: wethAddr, Decimals: 18, WrappedNative: true},
		{Symbol: "USDC", Address: usdcAddr, Decimals: 6},
		{Symbol: "DAI", Address: daiAddr, Decimals: 18},
	})
	require.NoError(t, err)

	oracle := &fakeOracle{}
	backend := newFakeBackend()
	builder, err := txbuild.NewBuilder(routerAddr, wethAddr)
	require.NoError(t, err)

	states := make(chan Intent, 64)
	if opts.OnTransition == nil {
		opts.OnTransition = func(it Intent) { states <- it }
	}
	if opts.Debounce == 0 {
		opts.Debounce = 5 * time.Millisecond
	}

	var prices quote.PriceSource
	svc := quote.NewService(registry, quote.NewQuoter(oracle), prices, nil)
	ctrl := NewController(svc, builder, backend, nil, ownerAddr, opts, nil)

	eth, _ := registry.Lookup("ETH")
	weth, _ := registry.Lookup("WETH")
	usdc, _ := registry.Lookup("USDC")
	dai, _ := registry.Lookup("DAI")

	return &fixture{
		oracle:  oracle,
		backend: backend,
		ctrl:    ctrl,
		states:  states,
		eth:     eth,
		weth:    weth,
		usdc:    usdc,
		dai:     dai,
	}
}

// waitState drains transitions until the wanted state appears, failing on a
// terminal state it did not expect.
func waitState(t *testing.T, states <-chan Intent, want State) Intent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case it := <-states:
			if it.State == want {
				return it
			}
			if it.State.Terminal() {
				t.Fatalf("reached terminal state %s (err: %v) while waiting for %s", it.State, it.Err, want)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func TestPipelineReachesPreviewReady(t *testing.T) {
	f := newFixture(t, Options{ToleranceBps: 50})
	f.oracle.set(usdcAddr, daiAddr, 1_000_000, 2_500_000_000)

	require.NoError(t, f.ctrl.SetInput(context.Background(), f.usdc, f.dai, big.NewInt(1000)))

	waitState(t, f.states, StateQuoting)
	quoted := waitState(t, f.states, StateQuoted)
	assert.Equal(t, int64(2_487_525), quoted.Quote.AmountOut.Int64())
	assert.Equal(t, int64(2_475_088), quoted.Bound.MinAmountOut.Int64())

	preview := waitState(t, f.states, StatePreviewReady)
	require.NotNil(t, preview.Tx)
	assert.Equal(t, txbuild.CallSwapExactTokensForTokens, preview.Tx.Kind)
	assert.NotNil(t, preview.Sim)
}

func TestApprovalGateBlocksAndResumes(t *testing.T) {
	f := newFixture(t, Options{ToleranceBps: 50})
	f.oracle.set(usdcAddr, daiAddr, 1_000_000, 2_500_000_000)
	f.backend.mu.Lock()
	f.backend.allowance = big.NewInt(0)
	f.backend.mu.Unlock()

	require.NoError(t, f.ctrl.SetInput(context.Background(), f.usdc, f.dai, big.NewInt(1000)))
	waitState(t, f.states, StateAwaitingApproval)

	// Reporting settlement without an actual allowance change is caught.
	err := f.ctrl.ApprovalSettled(context.Background())
	assert.ErrorIs(t, err, swaperr.ErrInsufficientAllowance)

	f.backend.mu.Lock()
	f.backend.allowance = big.NewInt(1000)
	f.backend.mu.Unlock()

	require.NoError(t, f.ctrl.ApprovalSettled(context.Background()))
	waitState(t, f.states, StatePreviewReady)
}

func TestNativeInputSkipsApproval(t *testing.T) {
	f := newFixture(t, Options{ToleranceBps: 50})
	f.oracle.set(wethAddr, usdcAddr, 1_000_000, 2_500_000_000)
	f.backend.mu.Lock()
	f.backend.allowanceErr = errors.New("allowance must not be read for native input")
	f.backend.mu.Unlock()

	require.NoError(t, f.ctrl.SetInput(context.Background(), f.eth, f.usdc, big.NewInt(1000)))

	preview := waitState(t, f.states, StatePreviewReady)
	assert.Equal(t, txbuild.CallSwapExactNativeForTokens, preview.Tx.Kind)
}

func TestWrapConversionPreview(t *testing.T) {
	f := newFixture(t, Options{ToleranceBps: 50})
	// No pools anywhere: a conversion must not need them.

	amount := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	amount.Mul(amount, big.NewInt(5))
	require.NoError(t, f.ctrl.SetInput(context.Background(), f.eth, f.weth, amount))

	preview := waitState(t, f.states, StatePreviewReady)
	assert.Equal(t, txbuild.CallWrapDeposit, preview.Tx.Kind)
	assert.Equal(t, amount, preview.Tx.Value)
	assert.Equal(t, amount, preview.Quote.AmountOut, "wrap converts 1:1")
}

func TestRapidInputChangesQuoteOnlyTheLast(t *testing.T) {
	f := newFixture(t, Options{ToleranceBps: 50, Debounce: 30 * time.Millisecond})
	f.oracle.set(usdcAddr, daiAddr, 1_000_000, 2_500_000_000)

	ctx := context.Background()
	require.NoError(t, f.ctrl.SetInput(ctx, f.usdc, f.dai, big.NewInt(100)))
	require.NoError(t, f.ctrl.SetInput(ctx, f.usdc, f.dai, big.NewInt(500)))
	require.NoError(t, f.ctrl.SetInput(ctx, f.usdc, f.dai, big.NewInt(1000)))

	// Exactly one Quoted transition, and it priced the final input.
	var quoted []Intent
	deadline := time.After(2 * time.Second)
loop:
	for {
		select {
		case it := <-f.states:
			switch {
			case it.State == StateQuoted:
				quoted = append(quoted, it)
			case it.State == StatePreviewReady:
				break loop
			case it.State.Terminal():
				t.Fatalf("unexpected terminal state %s (err: %v)", it.State, it.Err)
			}
		case <-deadline:
			t.Fatal("timed out waiting for preview")
		}
	}

	require.Len(t, quoted, 1)
	assert.Equal(t, int64(1000), quoted[0].AmountIn.Int64())
	assert.Equal(t, int64(2_487_525), quoted[0].Quote.AmountOut.Int64())
}

func TestStaleRecomputationDiscarded(t *testing.T) {
	f := newFixture(t, Options{ToleranceBps: 50, Debounce: time.Millisecond})
	f.oracle.set(usdcAddr, daiAddr, 1_000_000, 2_500_000_000)
	f.oracle.gate = make(chan struct{})

	ctx := context.Background()
	require.NoError(t, f.ctrl.SetInput(ctx, f.usdc, f.dai, big.NewInt(100)))

	// Let the first pipeline reach the gated oracle read, then supersede it.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, f.ctrl.SetInput(ctx, f.usdc, f.dai, big.NewInt(1000)))

	// Release both reads; only the second generation may land.
	close(f.oracle.gate)

	preview := waitState(t, f.states, StatePreviewReady)
	assert.Equal(t, int64(1000), preview.AmountIn.Int64())
	assert.Equal(t, int64(2_487_525), preview.Quote.AmountOut.Int64())
}

func TestNoRouteAndNoPriceDataFails(t *testing.T) {
	f := newFixture(t, Options{ToleranceBps: 50})
	// Zero-liquidity pool and no price feed configured.
	f.oracle.set(usdcAddr, daiAddr, 0, 0)

	require.NoError(t, f.ctrl.SetInput(context.Background(), f.usdc, f.dai, big.NewInt(1000)))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case it := <-f.states:
			if it.State == StateFailed {
				assert.ErrorIs(t, it.Err, swaperr.ErrNoRouteAndNoPriceData)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for failure")
		}
	}
}

func TestSimulationBelowBoundFails(t *testing.T) {
	f := newFixture(t, Options{ToleranceBps: 50})
	f.oracle.set(usdcAddr, daiAddr, 1_000_000, 2_500_000_000)
	f.backend.mu.Lock()
	// Router now quotes below the bound the trade was built with.
	f.backend.amountsOut = []*big.Int{big.NewInt(1000), big.NewInt(1)}
	f.backend.mu.Unlock()

	require.NoError(t, f.ctrl.SetInput(context.Background(), f.usdc, f.dai, big.NewInt(1000)))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case it := <-f.states:
			if it.State == StateFailed {
				assert.ErrorIs(t, it.Err, swaperr.ErrSimulationReverted)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for simulation failure")
		}
	}
}

func TestConfirmExecutesToSettled(t *testing.T) {
	f := newFixture(t, Options{ToleranceBps: 50})
	f.oracle.set(usdcAddr, daiAddr, 1_000_000, 2_500_000_000)

	require.NoError(t, f.ctrl.SetInput(context.Background(), f.usdc, f.dai, big.NewInt(1000)))
	waitState(t, f.states, StatePreviewReady)

	require.NoError(t, f.ctrl.Confirm(context.Background()))

	final := f.ctrl.Intent()
	assert.Equal(t, StateSettled, final.State)
	assert.Equal(t, f.backend.submitHash, final.TxHash)
	require.Len(t, f.backend.submitted, 1)
}

func TestConfirmRequiresPreview(t *testing.T) {
	f := newFixture(t, Options{ToleranceBps: 50})
	assert.Error(t, f.ctrl.Confirm(context.Background()), "nothing quoted yet")
}

func TestConfirmInsufficientBalance(t *testing.T) {
	f := newFixture(t, Options{ToleranceBps: 50})
	f.oracle.set(usdcAddr, daiAddr, 1_000_000, 2_500_000_000)
	f.backend.mu.Lock()
	f.backend.balance = big.NewInt(1)
	f.backend.mu.Unlock()

	require.NoError(t, f.ctrl.SetInput(context.Background(), f.usdc, f.dai, big.NewInt(1000)))
	waitState(t, f.states, StatePreviewReady)

	err := f.ctrl.Confirm(context.Background())
	assert.ErrorIs(t, err, swaperr.ErrInsufficientBalance)
	assert.Equal(t, StateFailed, f.ctrl.Intent().State)
	assert.Empty(t, f.backend.submitted, "nothing may be submitted without funds")
}

func TestConfirmWalletRejection(t *testing.T) {
	f := newFixture(t, Options{ToleranceBps: 50})
	f.oracle.set(usdcAddr, daiAddr, 1_000_000, 2_500_000_000)
	f.backend.mu.Lock()
	f.backend.submitErr = errors.New("user rejected transaction")
	f.backend.mu.Unlock()

	require.NoError(t, f.ctrl.SetInput(context.Background(), f.usdc, f.dai, big.NewInt(1000)))
	waitState(t, f.states, StatePreviewReady)

	err := f.ctrl.Confirm(context.Background())
	assert.ErrorIs(t, err, swaperr.ErrUserRejected)
	assert.NotErrorIs(t, err, swaperr.ErrExecutionReverted)
}

func TestExecutingIsNotInterruptible(t *testing.T) {
	f := newFixture(t, Options{ToleranceBps: 50})
	f.oracle.set(usdcAddr, daiAddr, 1_000_000, 2_500_000_000)
	f.backend.submitGate = make(chan struct{})

	require.NoError(t, f.ctrl.SetInput(context.Background(), f.usdc, f.dai, big.NewInt(1000)))
	waitState(t, f.states, StatePreviewReady)

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Confirm(context.Background()) }()
	waitState(t, f.states, StateExecuting)

	// Neither cancellation nor new input may disturb a submitted trade.
	assert.Error(t, f.ctrl.Cancel())
	assert.Error(t, f.ctrl.SetInput(context.Background(), f.usdc, f.dai, big.NewInt(5)))

	close(f.backend.submitGate)
	require.NoError(t, <-done)
	assert.Equal(t, StateSettled, f.ctrl.Intent().State)
}

func TestCancelRules(t *testing.T) {
	f := newFixture(t, Options{ToleranceBps: 50})
	f.oracle.set(usdcAddr, daiAddr, 1_000_000, 2_500_000_000)

	// Idle: nothing to cancel, no error.
	assert.NoError(t, f.ctrl.Cancel())

	require.NoError(t, f.ctrl.SetInput(context.Background(), f.usdc, f.dai, big.NewInt(1000)))
	waitState(t, f.states, StatePreviewReady)

	require.NoError(t, f.ctrl.Cancel())
	assert.Equal(t, StateCancelled, f.ctrl.Intent().State)

	// Cancelling a terminal intent stays a no-op.
	assert.NoError(t, f.ctrl.Cancel())
}

func TestClearingInputResetsToIdle(t *testing.T) {
	f := newFixture(t, Options{ToleranceBps: 50})
	f.oracle.set(usdcAddr, daiAddr, 1_000_000, 2_500_000_000)

	require.NoError(t, f.ctrl.SetInput(context.Background(), f.usdc, f.dai, big.NewInt(1000)))
	waitState(t, f.states, StatePreviewReady)

	require.NoError(t, f.ctrl.SetInput(context.Background(), f.usdc, f.dai, nil))
	assert.Equal(t, StateIdle, f.ctrl.Intent().State)
}

func TestExternalSimulatorIsUsed(t *testing.T) {
	f := newFixture(t, Options{ToleranceBps: 50})
	f.oracle.set(usdcAddr, daiAddr, 1_000_000, 2_500_000_000)

	result := &sim.Result{GasFeeUSD: 1.23, Warnings: []string{"high impact"}}
	f.ctrl.simulator = simulatorFunc(func(ctx context.Context, tx *txbuild.UnsignedTx) (*sim.Result, error) {
		return result, nil
	})

	require.NoError(t, f.ctrl.SetInput(context.Background(), f.usdc, f.dai, big.NewInt(1000)))
	preview := waitState(t, f.states, StatePreviewReady)
	assert.Equal(t, result, preview.Sim)
}

type simulatorFunc func(ctx context.Context, tx *txbuild.UnsignedTx) (*sim.Result, error)

func (f simulatorFunc) Simulate(ctx context.Context, tx *txbuild.UnsignedTx) (*sim.Result, error) {
	return f(ctx, tx)
}
