package token

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token describes one tradable asset on the active network. Tokens are
// immutable once loaded into a Registry.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals uint8

	// Native marks the chain's own currency (no contract, no allowance).
	Native bool
	// WrappedNative marks the ERC-20 wrapper of the native currency. It is
	// the hub token for two-hop routing and the target of wrap/unwrap.
	WrappedNative bool
}

// IsZero reports whether the token is the zero value.
func (t Token) IsZero() bool {
	return t.Symbol == "" && t.Address == (common.Address{})
}

// Same reports whether two tokens refer to the same asset. The native
// currency has no contract address, so symbols break the tie.
func (t Token) Same(other Token) bool {
	if t.Native != other.Native {
		return false
	}
	if t.Native {
		return true
	}
	return t.Address == other.Address
}

// Registry is the static symbol -> token mapping for one network session.
type Registry struct {
	bySymbol map[string]Token
	native   Token
	wrapped  Token
}

// NewRegistry builds a registry from a token list. Exactly one native and
// one wrapped-native entry are required.
func NewRegistry(tokens []Token) (*Registry, error) {
	r := &Registry{bySymbol: make(map[string]Token, len(tokens))}
	for _, t := range tokens {
		sym := strings.ToUpper(strings.TrimSpace(t.Symbol))
		if sym == "" {
			return nil, fmt.Errorf("token with empty symbol")
		}
		if _, dup := r.bySymbol[sym]; dup {
			return nil, fmt.Errorf("duplicate token symbol %q", sym)
		}
		t.Symbol = sym
		r.bySymbol[sym] = t

		if t.Native {
			if !r.native.IsZero() {
				return nil, fmt.Errorf("more than one native token (%s, %s)", r.native.Symbol, sym)
			}
			r.native = t
		}
		if t.WrappedNative {
			if !r.wrapped.IsZero() {
				return nil, fmt.Errorf("more than one wrapped-native token (%s, %s)", r.wrapped.Symbol, sym)
			}
			r.wrapped = t
		}
	}
	if r.native.IsZero() {
		return nil, fmt.Errorf("token list has no native token")
	}
	if r.wrapped.IsZero() {
		return nil, fmt.Errorf("token list has no wrapped-native token")
	}
	return r, nil
}

// Lookup resolves a symbol, case-insensitively.
func (r *Registry) Lookup(symbol string) (Token, error) {
	t, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Token{}, fmt.Errorf("token %q not found", symbol)
	}
	return t, nil
}

// Native returns the chain's native currency.
func (r *Registry) Native() Token { return r.native }

// WrappedNative returns the wrapped form of the native currency, which also
// serves as the routing hub.
func (r *Registry) WrappedNative() Token { return r.wrapped }

// All returns every registered token, ordering unspecified.
func (r *Registry) All() []Token {
	out := make([]Token, 0, len(r.bySymbol))
	for _, t := range r.bySymbol {
		out = append(out, t)
	}
	return out
}
