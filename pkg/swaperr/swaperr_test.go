package swaperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAndKind(t *testing.T) {
	wrapped := fmt.Errorf("quoting USDC -> DAI: %w", ErrRouteUnavailable)

	assert.True(t, Is(ErrRouteUnavailable))
	assert.True(t, Is(wrapped))
	assert.Equal(t, ErrRouteUnavailable, Kind(wrapped))

	plain := errors.New("something else")
	assert.False(t, Is(plain))
	assert.Nil(t, Kind(plain))
	assert.False(t, Is(nil))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback error
		wantKind error
	}{
		{
			name:     "already classified passes through",
			err:      fmt.Errorf("ctx: %w", ErrInsufficientBalance),
			fallback: ErrExecutionReverted,
			wantKind: ErrInsufficientBalance,
		},
		{
			name:     "deadline exceeded",
			err:      context.DeadlineExceeded,
			fallback: ErrExecutionReverted,
			wantKind: ErrNetworkTimeout,
		},
		{
			name:     "node revert string",
			err:      errors.New("execution reverted: UniswapV2: INSUFFICIENT_OUTPUT_AMOUNT"),
			fallback: ErrNetworkTimeout,
			wantKind: ErrExecutionReverted,
		},
		{
			name:     "wallet rejection string",
			err:      errors.New("user rejected transaction"),
			fallback: ErrExecutionReverted,
			wantKind: ErrUserRejected,
		},
		{
			name:     "unknown takes the fallback",
			err:      errors.New("boom"),
			fallback: ErrSimulationReverted,
			wantKind: ErrSimulationReverted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, tt.fallback)
			assert.ErrorIs(t, got, tt.wantKind)
		})
	}
}

func TestClassifyPreservesMessage(t *testing.T) {
	raw := errors.New("execution reverted: K")
	got := Classify(raw, nil)
	assert.ErrorIs(t, got, ErrExecutionReverted)
	assert.Contains(t, got.Error(), "K")
}

func TestClassifyNilFallbackPassthrough(t *testing.T) {
	raw := errors.New("boom")
	assert.Equal(t, raw, Classify(raw, nil))
	assert.Nil(t, Classify(nil, ErrNetworkTimeout))
}
