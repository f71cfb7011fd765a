package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"evm-swap/pkg/quote"
	"evm-swap/pkg/sim"
	"evm-swap/pkg/token"
	"evm-swap/pkg/txbuild"
)

// State is the lifecycle position of a swap intent.
type State string

const (
	StateIdle             State = "idle"
	StateQuoting          State = "quoting"
	StateQuoted           State = "quoted"
	StateAwaitingApproval State = "awaiting_approval"
	StateSimulating       State = "simulating"
	StatePreviewReady     State = "preview_ready"
	StateExecuting        State = "executing"
	StateSettled          State = "settled"
	StateFailed           State = "failed"
	StateCancelled        State = "cancelled"
)

// Terminal reports whether the state ends the intent's lifecycle.
func (s State) Terminal() bool {
	return s == StateSettled || s == StateFailed || s == StateCancelled
}

// Intent is the single live swap lifecycle object. A new input burst
// produces a fresh intent with a higher generation; results computed for an
// older generation are discarded, never applied.
type Intent struct {
	Generation uint64
	From       token.Token
	To         token.Token
	AmountIn   *big.Int

	State  State
	Quote  *quote.Quote
	Bound  quote.SlippageBound
	Tx     *txbuild.UnsignedTx
	Sim    *sim.Result
	TxHash common.Hash
	Err    error
}

// snapshot returns a shallow copy for callbacks and accessors; the quote,
// bound, and tx values are themselves immutable once set.
func (it *Intent) snapshot() Intent {
	cp := *it
	return cp
}
