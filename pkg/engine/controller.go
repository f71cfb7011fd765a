// Package engine drives the swap lifecycle: quote, approval gating,
// simulation, preview, and execution, as a single-intent state machine with
// debounced recomputation.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"evm-swap/pkg/quote"
	"evm-swap/pkg/sim"
	"evm-swap/pkg/swaperr"
	"evm-swap/pkg/token"
	"evm-swap/pkg/txbuild"
)

// DefaultDebounce is the minimum quiet period between an input change and
// the reserve re-query it triggers.
const DefaultDebounce = 500 * time.Millisecond

// Backend is the on-chain collaborator surface the controller needs; it is
// satisfied by chain.Client.
type Backend interface {
	AllowanceReader
	BalanceOf(ctx context.Context, tokenAddr, account common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
	Submit(ctx context.Context, tx *txbuild.UnsignedTx) (common.Hash, error)
	WaitReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
	Router() common.Address
}

// Simulator is the optional external dry-run service. When absent, the
// controller falls back to the router's getAmountsOut read as its dry run.
type Simulator interface {
	Simulate(ctx context.Context, tx *txbuild.UnsignedTx) (*sim.Result, error)
}

// Options tune one controller instance.
type Options struct {
	ToleranceBps uint32
	Debounce     time.Duration // 0 means DefaultDebounce
	Recipient    common.Address
	// OnTransition observes every state change with an intent snapshot. It
	// runs outside the controller lock and may be nil.
	OnTransition func(Intent)
}

// Controller owns the single live SwapIntent and serializes all transitions.
type Controller struct {
	svc       *quote.Service
	builder   *txbuild.Builder
	backend   Backend
	simulator Simulator
	owner     common.Address
	recipient common.Address
	tolerance uint32
	debounce  time.Duration
	now       func() time.Time
	onChange  func(Intent)
	log       *zap.Logger

	mu         sync.Mutex
	generation uint64
	intent     *Intent
	timer      *time.Timer
	// executing guards one in-flight execution per owner and pair.
	executing map[string]struct{}
}

// NewController wires the engine. simulator may be nil; log may be nil.
func NewController(svc *quote.Service, builder *txbuild.Builder, backend Backend, simulator Simulator, owner common.Address, opts Options, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	recipient := opts.Recipient
	if recipient == (common.Address{}) {
		recipient = owner
	}
	return &Controller{
		svc:       svc,
		builder:   builder,
		backend:   backend,
		simulator: simulator,
		owner:     owner,
		recipient: recipient,
		tolerance: opts.ToleranceBps,
		debounce:  debounce,
		now:       time.Now,
		onChange:  opts.OnTransition,
		log:       log,
		intent:    &Intent{State: StateIdle},
		executing: make(map[string]struct{}),
	}
}

// Intent returns a snapshot of the live intent.
func (c *Controller) Intent() Intent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intent.snapshot()
}

// SetInput registers a new (from, to, amountIn) triple. The prior intent is
// discarded unless it is executing: a submitted transaction always runs to
// settlement first. Recomputation starts after the debounce window; within a
// burst of changes only the last input is quoted.
func (c *Controller) SetInput(ctx context.Context, from, to token.Token, amountIn *big.Int) error {
	c.mu.Lock()

	if c.intent.State == StateExecuting {
		c.mu.Unlock()
		return fmt.Errorf("execution in progress, input change refused")
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		// Clearing the amount resets the session to idle.
		c.generation++
		c.stopTimerLocked()
		c.intent = &Intent{Generation: c.generation, State: StateIdle}
		snap := c.intent.snapshot()
		c.mu.Unlock()
		c.notify(snap)
		return nil
	}

	c.generation++
	gen := c.generation
	c.stopTimerLocked()
	c.intent = &Intent{
		Generation: gen,
		From:       from,
		To:         to,
		AmountIn:   new(big.Int).Set(amountIn),
		State:      StateQuoting,
	}
	snap := c.intent.snapshot()

	c.timer = time.AfterFunc(c.debounce, func() {
		c.runPipeline(ctx, gen)
	})
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// Cancel dismisses the live intent. Cancellation is cooperative and only
// meaningful before execution; after submission it has no effect on the
// broadcast transaction.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	switch c.intent.State {
	case StateExecuting:
		c.mu.Unlock()
		return fmt.Errorf("cannot cancel after submission")
	case StateIdle:
		c.mu.Unlock()
		return nil
	}
	if c.intent.State.Terminal() {
		c.mu.Unlock()
		return nil
	}
	c.generation++ // orphan any in-flight recomputation
	c.stopTimerLocked()
	c.intent.State = StateCancelled
	snap := c.intent.snapshot()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// ApprovalSettled tells the controller that the external approval
// transaction has settled. The gate is re-evaluated rather than trusted,
// since allowance is external mutable state.
func (c *Controller) ApprovalSettled(ctx context.Context) error {
	c.mu.Lock()
	if c.intent.State != StateAwaitingApproval {
		c.mu.Unlock()
		return fmt.Errorf("no approval pending (state %s)", c.intent.State)
	}
	gen := c.intent.Generation
	from := c.intent.From
	amountIn := c.intent.AmountIn
	c.mu.Unlock()

	needed, err := NeedsApproval(ctx, c.backend, from, c.owner, c.backend.Router(), amountIn)
	if err != nil {
		c.fail(gen, swaperr.Classify(err, swaperr.ErrNetworkTimeout))
		return err
	}
	if needed {
		return fmt.Errorf("%w: approval has not settled", swaperr.ErrInsufficientAllowance)
	}

	c.simulate(ctx, gen)
	return nil
}

// Confirm executes the previewed trade. Only valid in PreviewReady; refuses
// to start while another execution for the same owner and pair is pending.
// Runs synchronously to Settled or Failed.
func (c *Controller) Confirm(ctx context.Context) error {
	c.mu.Lock()
	if c.intent.State != StatePreviewReady {
		c.mu.Unlock()
		return fmt.Errorf("nothing to confirm (state %s)", c.intent.State)
	}
	key := c.executionKey(c.intent.From, c.intent.To)
	if _, busy := c.executing[key]; busy {
		c.mu.Unlock()
		return fmt.Errorf("an execution for this pair is already pending")
	}
	c.executing[key] = struct{}{}
	gen := c.intent.Generation
	it := c.intent.snapshot()
	c.intent.State = StateExecuting
	snap := c.intent.snapshot()
	c.mu.Unlock()
	c.notify(snap)

	defer func() {
		c.mu.Lock()
		delete(c.executing, key)
		c.mu.Unlock()
	}()

	if err := c.checkBalance(ctx, it); err != nil {
		c.fail(gen, err)
		return err
	}

	hash, err := c.backend.Submit(ctx, it.Tx)
	if err != nil {
		// A wallet-level rejection happens before broadcast; Classify keeps
		// it distinguishable from an on-chain revert.
		classified := swaperr.Classify(err, swaperr.ErrExecutionReverted)
		c.fail(gen, classified)
		return classified
	}

	c.mu.Lock()
	if c.intent.Generation == gen {
		c.intent.TxHash = hash
	}
	c.mu.Unlock()

	if _, err := c.backend.WaitReceipt(ctx, hash); err != nil {
		classified := swaperr.Classify(err, swaperr.ErrExecutionReverted)
		c.fail(gen, classified)
		return classified
	}

	c.transition(gen, func(it *Intent) {
		it.State = StateSettled
	})
	return nil
}

// runPipeline carries one generation from Quoting as far as it can go
// without user interaction: Quoted, then AwaitingApproval or Simulating,
// then PreviewReady. Results for a superseded generation are dropped.
func (c *Controller) runPipeline(ctx context.Context, gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	from := c.intent.From
	to := c.intent.To
	amountIn := c.intent.AmountIn
	c.mu.Unlock()

	q, err := c.svc.QuoteExactIn(ctx, from, to, amountIn)
	if err != nil {
		c.fail(gen, err)
		return
	}

	bound, err := quote.Bound(q, c.tolerance, c.now())
	if err != nil {
		c.fail(gen, err)
		return
	}

	if !c.transition(gen, func(it *Intent) {
		it.Quote = q
		it.Bound = bound
		it.State = StateQuoted
	}) {
		return
	}

	// A price-feed estimate is informational only: it stops at Quoted and
	// is never simulated or executed.
	if q.Source == quote.SourcePriceFallback {
		c.log.Info("quote is a price-feed estimate, execution blocked",
			zap.String("from", from.Symbol),
			zap.String("to", to.Symbol))
		return
	}

	tx, err := c.builder.Build(from, to, q.Route, amountIn, bound, c.recipient)
	if err != nil {
		c.fail(gen, err)
		return
	}
	if !c.transition(gen, func(it *Intent) {
		it.Tx = tx
	}) {
		return
	}

	// Wrap and unwrap spend no allowance.
	if tx.Kind != txbuild.CallWrapDeposit && tx.Kind != txbuild.CallUnwrapWithdraw {
		needed, err := NeedsApproval(ctx, c.backend, from, c.owner, c.backend.Router(), amountIn)
		if err != nil {
			c.fail(gen, swaperr.Classify(err, swaperr.ErrNetworkTimeout))
			return
		}
		if needed {
			c.transition(gen, func(it *Intent) {
				it.State = StateAwaitingApproval
			})
			return
		}
	}

	c.simulate(ctx, gen)
}

// simulate performs the pre-execution dry run and moves to PreviewReady.
func (c *Controller) simulate(ctx context.Context, gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	it := c.intent.snapshot()
	c.mu.Unlock()

	if !c.transition(gen, func(it *Intent) {
		it.State = StateSimulating
	}) {
		return
	}

	result, err := c.dryRun(ctx, it)
	if err != nil {
		c.fail(gen, swaperr.Classify(err, swaperr.ErrSimulationReverted))
		return
	}

	c.transition(gen, func(it *Intent) {
		it.Sim = result
		it.State = StatePreviewReady
	})
}

// dryRun uses the external simulation service when configured and the
// router's getAmountsOut read otherwise. Conversions have no pool path and
// pass trivially.
func (c *Controller) dryRun(ctx context.Context, it Intent) (*sim.Result, error) {
	if it.Tx.Kind == txbuild.CallWrapDeposit || it.Tx.Kind == txbuild.CallUnwrapWithdraw {
		return &sim.Result{}, nil
	}

	if c.simulator != nil {
		return c.simulator.Simulate(ctx, it.Tx)
	}

	amounts, err := c.backend.AmountsOut(ctx, it.AmountIn, it.Quote.Route.Path())
	if err != nil {
		return nil, err
	}
	if len(amounts) == 0 {
		return nil, fmt.Errorf("%w: empty amounts from router", swaperr.ErrSimulationReverted)
	}
	final := amounts[len(amounts)-1]
	if final.Cmp(it.Bound.MinAmountOut) < 0 {
		return nil, fmt.Errorf("%w: router quotes %s below minimum %s",
			swaperr.ErrSimulationReverted, final, it.Bound.MinAmountOut)
	}
	return &sim.Result{}, nil
}

// checkBalance verifies the owner can fund the trade before submission.
func (c *Controller) checkBalance(ctx context.Context, it Intent) error {
	var (
		balance *big.Int
		err     error
	)
	if it.From.Native {
		balance, err = c.backend.NativeBalance(ctx, c.owner)
	} else {
		balance, err = c.backend.BalanceOf(ctx, it.From.Address, c.owner)
	}
	if err != nil {
		return swaperr.Classify(err, swaperr.ErrNetworkTimeout)
	}
	if balance.Cmp(it.AmountIn) < 0 {
		return fmt.Errorf("%w: have %s, need %s", swaperr.ErrInsufficientBalance, balance, it.AmountIn)
	}
	return nil
}

// transition applies a mutation if gen is still current and notifies the
// observer. Returns false when the generation has been superseded.
func (c *Controller) transition(gen uint64, mutate func(*Intent)) bool {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return false
	}
	mutate(c.intent)
	snap := c.intent.snapshot()
	c.mu.Unlock()
	c.notify(snap)
	return true
}

// fail moves the intent to Failed with a classified error.
func (c *Controller) fail(gen uint64, err error) {
	c.transition(gen, func(it *Intent) {
		it.State = StateFailed
		it.Err = err
	})
	c.log.Debug("intent failed", zap.Uint64("generation", gen), zap.Error(err))
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) executionKey(from, to token.Token) string {
	return c.owner.Hex() + "/" + from.Symbol + "/" + to.Symbol
}

func (c *Controller) notify(it Intent) {
	if c.onChange != nil {
		c.onChange(it)
	}
}
