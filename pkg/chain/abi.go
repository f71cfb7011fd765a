package chain

// Minimal ABI fragments for the external contracts this client reads. Only
// the call shapes are known here; none of these contracts are implemented by
// the engine.
const (
	factoryABIJSON = `[
		{"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],
		 "name":"getPair","outputs":[{"type":"address"}],"stateMutability":"view","type":"function"}
	]`

	pairABIJSON = `[
		{"inputs":[],"name":"getReserves","outputs":[
			{"internalType":"uint112","name":"reserve0","type":"uint112"},
			{"internalType":"uint112","name":"reserve1","type":"uint112"},
			{"internalType":"uint32","name":"blockTimestampLast","type":"uint32"}],
		 "stateMutability":"view","type":"function"}
	]`

	erc20ABIJSON = `[
		{"constant":true,"inputs":[{"name":"_owner","type":"address"}],
		 "name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
		{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],
		 "name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
		{"constant":true,"inputs":[],
		 "name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
		{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],
		 "name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
	]`
)
