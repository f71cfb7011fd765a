package token

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseTokens() []Token {
	return []Token{
		{Symbol: "ETH", Decimals: 18, Native: true},
		{Symbol: "WETH", Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Decimals: 18, WrappedNative: true},
		{Symbol: "USDC", Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Decimals: 6},
	}
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(baseTokens())
	require.NoError(t, err)

	assert.Equal(t, "ETH", r.Native().Symbol)
	assert.Equal(t, "WETH", r.WrappedNative().Symbol)
	assert.Len(t, r.All(), 3)
}

func TestNewRegistryValidation(t *testing.T) {
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	tests := []struct {
		name   string
		tokens []Token
	}{
		{
			name: "no native",
			tokens: []Token{
				{Symbol: "WETH", Address: weth, Decimals: 18, WrappedNative: true},
			},
		},
		{
			name: "no wrapped native",
			tokens: []Token{
				{Symbol: "ETH", Decimals: 18, Native: true},
			},
		},
		{
			name: "duplicate symbol",
			tokens: append(baseTokens(),
				Token{Symbol: "usdc", Address: weth, Decimals: 6}),
		},
		{
			name: "two natives",
			tokens: append(baseTokens(),
				Token{Symbol: "ETH2", Decimals: 18, Native: true}),
		},
		{
			name: "empty symbol",
			tokens: append(baseTokens(),
				Token{Symbol: "  ", Decimals: 18}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.tokens)
			assert.Error(t, err)
		})
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	r, err := NewRegistry(baseTokens())
	require.NoError(t, err)

	for _, s := range []string{"USDC", "usdc", " Usdc "} {
		tok, err := r.Lookup(s)
		require.NoError(t, err)
		assert.Equal(t, "USDC", tok.Symbol)
	}

	_, err = r.Lookup("SHIB")
	assert.Error(t, err)
}

func TestSame(t *testing.T) {
	tokens := baseTokens()
	eth, weth, usdc := tokens[0], tokens[1], tokens[2]

	assert.True(t, eth.Same(eth))
	assert.True(t, usdc.Same(usdc))
	assert.False(t, eth.Same(weth), "native and wrapper are distinct assets")
	assert.False(t, weth.Same(usdc))
}
