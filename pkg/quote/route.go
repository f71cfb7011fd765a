package quote

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"evm-swap/pkg/swaperr"
	"evm-swap/pkg/token"
)

// Route is an ordered sequence of 2 or 3 pool tokens, validated at
// construction: [from, to] or [from, hub, to], with no equal adjacent
// entries.
type Route struct {
	path []common.Address
}

// NewRoute validates and builds a route.
func NewRoute(path ...common.Address) (Route, error) {
	if len(path) != 2 && len(path) != 3 {
		return Route{}, fmt.Errorf("route must have 2 or 3 tokens, got %d", len(path))
	}
	for i := 1; i < len(path); i++ {
		if path[i] == path[i-1] {
			return Route{}, fmt.Errorf("route has equal adjacent tokens at %d", i)
		}
	}
	out := make([]common.Address, len(path))
	copy(out, path)
	return Route{path: out}, nil
}

// Path returns a copy of the token sequence.
func (r Route) Path() []common.Address {
	out := make([]common.Address, len(r.path))
	copy(out, r.path)
	return out
}

// Hops returns the number of pool edges (1 or 2).
func (r Route) Hops() int { return len(r.path) - 1 }

// First returns the input token address.
func (r Route) First() common.Address { return r.path[0] }

// Last returns the output token address.
func (r Route) Last() common.Address { return r.path[len(r.path)-1] }

func (r Route) String() string {
	s := ""
	for i, a := range r.path {
		if i > 0 {
			s += " -> "
		}
		s += a.Hex()
	}
	return s
}

// Candidates enumerates routes for a pair in priority order: the direct edge
// first, then the two-hop route through the wrapped-native hub. Selection is
// a deterministic priority policy, not a best-price search: the first
// candidate that quotes wins, so a viable direct pool always beats the
// routed path even when the routed path would pay out more.
//
// The wrap/unwrap pair and from == to are handled by the caller before
// routing; both tokens here must be pool-addressable (native is represented
// by its wrapped form).
func Candidates(from, to, hub common.Address) ([]Route, error) {
	if from == to {
		return nil, fmt.Errorf("%w: %s -> %s", swaperr.ErrInvalidPair, from.Hex(), to.Hex())
	}

	routes := make([]Route, 0, 2)

	direct, err := NewRoute(from, to)
	if err != nil {
		return nil, err
	}
	routes = append(routes, direct)

	if from != hub && to != hub {
		hubbed, err := NewRoute(from, hub, to)
		if err != nil {
			return nil, err
		}
		// Skip any candidate that loops back on itself.
		if hubbed.First() != hubbed.Last() {
			routes = append(routes, hubbed)
		}
	}
	return routes, nil
}

// PoolAddress maps a token onto its pool-addressable form: the native
// currency trades through its wrapped contract.
func PoolAddress(t token.Token, wrapped token.Token) common.Address {
	if t.Native {
		return wrapped.Address
	}
	return t.Address
}
