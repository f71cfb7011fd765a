package txbuild

import (
	"github.com/ethereum/go-ethereum/crypto"
)

// CallKind is the closed enumeration of every call this builder can emit.
// Route shapes are mapped onto it explicitly; nothing is selected by string
// matching, and an unrecognized shape is an error, never an empty payload.
type CallKind int

const (
	CallUnknown CallKind = iota

	// Wrapped-native conversions
	CallWrapDeposit    // deposit()
	CallUnwrapWithdraw // withdraw(uint256)

	// Router swaps
	CallSwapExactNativeForTokens // swapExactETHForTokens
	CallSwapExactTokensForNative // swapExactTokensForETH
	CallSwapExactTokensForTokens // swapExactTokensForTokens
)

func (k CallKind) String() string {
	switch k {
	case CallWrapDeposit:
		return "deposit"
	case CallUnwrapWithdraw:
		return "withdraw"
	case CallSwapExactNativeForTokens:
		return "swapExactETHForTokens"
	case CallSwapExactTokensForNative:
		return "swapExactTokensForETH"
	case CallSwapExactTokensForTokens:
		return "swapExactTokensForTokens"
	default:
		return "unknown"
	}
}

var kindSignatures = map[CallKind]string{
	CallWrapDeposit:              "deposit()",
	CallUnwrapWithdraw:           "withdraw(uint256)",
	CallSwapExactNativeForTokens: "swapExactETHForTokens(uint256,address[],address,uint256)",
	CallSwapExactTokensForNative: "swapExactTokensForETH(uint256,uint256,address[],address,uint256)",
	CallSwapExactTokensForTokens: "swapExactTokensForTokens(uint256,uint256,address[],address,uint256)",
}

var kindSelectors map[CallKind][4]byte

func init() {
	kindSelectors = make(map[CallKind][4]byte, len(kindSignatures))
	for kind, sig := range kindSignatures {
		kindSelectors[kind] = keccak4(sig)
	}
}

// Selector returns the fixed 4-byte selector for a call kind.
func Selector(kind CallKind) [4]byte { return kindSelectors[kind] }

func keccak4(signature string) [4]byte {
	hash := crypto.Keccak256([]byte(signature))
	var selector [4]byte
	copy(selector[:], hash[:4])
	return selector
}

// Minimal ABI fragments for the contracts the builder encodes against.
const (
	// RouterABI covers the three swap variants the engine emits.
	RouterABI = `[
		{"inputs":[
			{"internalType":"uint256","name":"amountOutMin","type":"uint256"},
			{"internalType":"address[]","name":"path","type":"address[]"},
			{"internalType":"address","name":"to","type":"address"},
			{"internalType":"uint256","name":"deadline","type":"uint256"}],
		 "name":"swapExactETHForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],
		 "stateMutability":"payable","type":"function"},

		{"inputs":[
			{"internalType":"uint256","name":"amountIn","type":"uint256"},
			{"internalType":"uint256","name":"amountOutMin","type":"uint256"},
			{"internalType":"address[]","name":"path","type":"address[]"},
			{"internalType":"address","name":"to","type":"address"},
			{"internalType":"uint256","name":"deadline","type":"uint256"}],
		 "name":"swapExactTokensForETH","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],
		 "stateMutability":"nonpayable","type":"function"},

		{"inputs":[
			{"internalType":"uint256","name":"amountIn","type":"uint256"},
			{"internalType":"uint256","name":"amountOutMin","type":"uint256"},
			{"internalType":"address[]","name":"path","type":"address[]"},
			{"internalType":"address","name":"to","type":"address"},
			{"internalType":"uint256","name":"deadline","type":"uint256"}],
		 "name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],
		 "stateMutability":"nonpayable","type":"function"},

		{"inputs":[
			{"internalType":"uint256","name":"amountIn","type":"uint256"},
			{"internalType":"address[]","name":"path","type":"address[]"}],
		 "name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],
		 "stateMutability":"view","type":"function"}
	]`

	// WrappedNativeABI covers the 1:1 conversion entry points.
	WrappedNativeABI = `[
		{"inputs":[],"name":"deposit","outputs":[],"stateMutability":"payable","type":"function"},
		{"inputs":[{"internalType":"uint256","name":"wad","type":"uint256"}],
		 "name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"}
	]`
)
