// Package swaperr defines the closed error taxonomy for the swap engine.
// Every failure that crosses a package boundary is one of these sentinels,
// possibly wrapped with call-site context via fmt.Errorf("%w").
package swaperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrInvalidPair is returned when the input and output token are the same.
	ErrInvalidPair = errors.New("invalid token pair")

	// ErrRouteUnavailable marks a single candidate route that cannot be
	// quoted (missing pool, empty reserves, or a timed-out reserve read).
	// It is recovered locally by trying the next candidate or the price
	// fallback and is never surfaced to the caller directly.
	ErrRouteUnavailable = errors.New("route unavailable")

	// ErrNoRouteAndNoPriceData is the terminal form of a failed resolution:
	// no candidate quoted and the price feed knows neither token.
	ErrNoRouteAndNoPriceData = errors.New("no viable route and no price data")

	// ErrInvalidTolerance is returned for slippage tolerances above 100%.
	ErrInvalidTolerance = errors.New("invalid slippage tolerance")

	// ErrUnsupportedRouteShape is returned by the transaction builder for
	// any route it does not recognize as one of its closed call variants.
	ErrUnsupportedRouteShape = errors.New("unsupported route shape")

	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientBalance   = errors.New("insufficient balance")

	// ErrSimulationReverted marks a failed pre-execution dry run.
	ErrSimulationReverted = errors.New("simulation reverted")

	// ErrExecutionReverted marks an on-chain revert after submission.
	ErrExecutionReverted = errors.New("execution reverted")

	// ErrUserRejected marks a wallet-level rejection before broadcast. It is
	// deliberately distinct from ErrExecutionReverted: the caller's
	// messaging differs.
	ErrUserRejected = errors.New("rejected by user")

	// ErrNetworkTimeout marks an RPC call that exceeded its deadline.
	ErrNetworkTimeout = errors.New("network timeout")
)

// taxonomy lists every sentinel, used by Is to test membership.
var taxonomy = []error{
	ErrInvalidPair,
	ErrRouteUnavailable,
	ErrNoRouteAndNoPriceData,
	ErrInvalidTolerance,
	ErrUnsupportedRouteShape,
	ErrInsufficientAllowance,
	ErrInsufficientBalance,
	ErrSimulationReverted,
	ErrExecutionReverted,
	ErrUserRejected,
	ErrNetworkTimeout,
}

// Is reports whether err already belongs to the taxonomy.
func Is(err error) bool {
	for _, sentinel := range taxonomy {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Kind returns the taxonomy sentinel underlying err, or nil if err is not
// classified.
func Kind(err error) error {
	for _, sentinel := range taxonomy {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

// Classify maps a raw failure into the taxonomy, preserving the original
// message by wrapping. Errors that already carry a sentinel pass through
// unchanged; deadline and transport failures become ErrNetworkTimeout. When
// nothing matches, fallback (a taxonomy sentinel, or nil for passthrough)
// decides the classification.
func Classify(err error, fallback error) error {
	if err == nil {
		return nil
	}
	if Is(err) {
		return err
	}

	kind := fallback
	var netErr net.Error
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrNetworkTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = ErrNetworkTimeout
	// go-ethereum surfaces node-side reverts as opaque strings.
	case strings.Contains(msg, "execution reverted"):
		kind = ErrExecutionReverted
	case strings.Contains(msg, "user denied"), strings.Contains(msg, "user rejected"):
		kind = ErrUserRejected
	}

	if kind == nil {
		return err
	}
	return fmt.Errorf("%w: %v", kind, err)
}
