package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"evm-swap/pkg/token"
)

// AllowanceReader reads the current ERC-20 allowance; allowance is external
// mutable state, so callers must re-read after any approval or swap settles.
type AllowanceReader interface {
	Allowance(ctx context.Context, tokenAddr, owner, spender common.Address) (*big.Int, error)
}

// NeedsApproval reports whether an approval transaction must precede a trade
// spending amountIn of tok. The native currency never requires approval.
// The gate is advisory only; it does not submit anything.
func NeedsApproval(ctx context.Context, reader AllowanceReader, tok token.Token, owner, spender common.Address, amountIn *big.Int) (bool, error) {
	if tok.Native {
		return false, nil
	}
	allowance, err := reader.Allowance(ctx, tok.Address, owner, spender)
	if err != nil {
		return false, fmt.Errorf("allowance check for %s: %w", tok.Symbol, err)
	}
	return allowance.Cmp(amountIn) < 0, nil
}
