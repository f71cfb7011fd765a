// Package chain is the boundary to the EVM node: reserve reads, ERC-20
// reads, router reads, and transaction submission. It implements the
// engine's external collaborators without owning any of them.
package chain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"evm-swap/pkg/quote"
	"evm-swap/pkg/swaperr"
	"evm-swap/pkg/txbuild"
)

const (
	defaultCallTimeout = 10 * time.Second
	receiptPollEvery   = 2 * time.Second

	// Pair addresses are immutable once created, so cache entries never go
	// stale; the bound only caps memory.
	pairCacheSize = 512
)

// Config carries the connection and contract parameters for one network.
type Config struct {
	RPCURL     string
	ChainID    int64
	Factory    common.Address
	Router     common.Address
	PrivateKey string // hex; optional for read-only use
	Timeout    time.Duration
}

// Client wraps an ethclient connection with the read and submit operations
// the engine needs. All calls carry a timeout.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
	factory common.Address
	router  common.Address
	timeout time.Duration

	pairs *lru.Cache[string, common.Address]

	factoryABI abi.ABI
	pairABI    abi.ABI
	erc20ABI   abi.ABI
	routerABI  abi.ABI

	privateKey *ecdsa.PrivateKey
	owner      common.Address

	log *zap.Logger
}

// NewClient connects to the RPC endpoint and prepares the contract ABIs.
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL not configured")
	}
	if log == nil {
		log = zap.NewNop()
	}

	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	factoryABI, err := abi.JSON(strings.NewReader(factoryABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse factory ABI: %w", err)
	}
	pairABI, err := abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-20 ABI: %w", err)
	}
	routerABI, err := abi.JSON(strings.NewReader(txbuild.RouterABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}

	pairs, err := lru.New[string, common.Address](pairCacheSize)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	c := &Client{
		eth:        eth,
		chainID:    big.NewInt(cfg.ChainID),
		factory:    cfg.Factory,
		router:     cfg.Router,
		timeout:    timeout,
		pairs:      pairs,
		factoryABI: factoryABI,
		pairABI:    pairABI,
		erc20ABI:   erc20ABI,
		routerABI:  routerABI,
		log:        log,
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		pub, ok := key.Public().(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("failed to derive public key")
		}
		c.privateKey = key
		c.owner = crypto.PubkeyToAddress(*pub)
	}

	return c, nil
}

// Owner returns the address derived from the configured private key, or the
// zero address in read-only mode.
func (c *Client) Owner() common.Address { return c.owner }

// Router returns the configured router contract address.
func (c *Client) Router() common.Address { return c.router }

// ChainID returns the configured chain ID.
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// call performs a read against a contract and returns the raw output.
func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// pairAddress resolves the pool contract for an unordered token pair,
// caching the result.
func (c *Client) pairAddress(ctx context.Context, a, b common.Address) (common.Address, error) {
	key := pairKey(a, b)
	if addr, ok := c.pairs.Get(key); ok {
		return addr, nil
	}

	data, err := c.factoryABI.Pack("getPair", a, b)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack getPair: %w", err)
	}
	out, err := c.call(ctx, c.factory, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("getPair call failed: %w", err)
	}

	var addr common.Address
	if err := c.factoryABI.UnpackIntoInterface(&addr, "getPair", out); err != nil {
		return common.Address{}, fmt.Errorf("failed to decode getPair result: %w", err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("no pool for pair %s / %s", a.Hex(), b.Hex())
	}

	c.pairs.Add(key, addr)
	return addr, nil
}

func pairKey(a, b common.Address) string {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return a.Hex() + "/" + b.Hex()
}

// Reserves reads the current reserve pair for a route edge, oriented
// from -> to. The pool stores reserve0 for the numerically lower token
// address, so orientation is decided by address order without an extra
// token0 read.
func (c *Client) Reserves(ctx context.Context, from, to common.Address) (quote.Reserves, error) {
	pair, err := c.pairAddress(ctx, from, to)
	if err != nil {
		return quote.Reserves{}, err
	}

	data, err := c.pairABI.Pack("getReserves")
	if err != nil {
		return quote.Reserves{}, fmt.Errorf("failed to pack getReserves: %w", err)
	}
	out, err := c.call(ctx, pair, data)
	if err != nil {
		return quote.Reserves{}, fmt.Errorf("getReserves call failed: %w", err)
	}

	values, err := c.pairABI.Unpack("getReserves", out)
	if err != nil || len(values) < 2 {
		return quote.Reserves{}, fmt.Errorf("failed to decode getReserves result: %w", err)
	}
	reserve0, ok0 := values[0].(*big.Int)
	reserve1, ok1 := values[1].(*big.Int)
	if !ok0 || !ok1 {
		return quote.Reserves{}, fmt.Errorf("unexpected getReserves result types")
	}

	height, err := c.blockNumber(ctx)
	if err != nil {
		return quote.Reserves{}, err
	}

	reserveIn, reserveOut := reserve0, reserve1
	if bytes.Compare(from.Bytes(), to.Bytes()) > 0 {
		reserveIn, reserveOut = reserve1, reserve0
	}

	c.log.Debug("reserves fetched",
		zap.String("pair", pair.Hex()),
		zap.String("reserve_in", reserveIn.String()),
		zap.String("reserve_out", reserveOut.String()),
		zap.Uint64("height", height))

	return quote.Reserves{
		From:       from,
		To:         to,
		ReserveIn:  reserveIn,
		ReserveOut: reserveOut,
		ObservedAt: height,
	}, nil
}

func (c *Client) blockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.eth.BlockNumber(ctx)
}

// Allowance reads the current ERC-20 allowance of spender over owner's
// balance.
func (c *Client) Allowance(ctx context.Context, tokenAddr, owner, spender common.Address) (*big.Int, error) {
	data, err := c.erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance: %w", err)
	}
	out, err := c.call(ctx, tokenAddr, data)
	if err != nil {
		return nil, swaperr.Classify(fmt.Errorf("allowance call failed: %w", err), nil)
	}
	return new(big.Int).SetBytes(out), nil
}

// BalanceOf reads the ERC-20 balance of an account.
func (c *Client) BalanceOf(ctx context.Context, tokenAddr, account common.Address) (*big.Int, error) {
	data, err := c.erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}
	out, err := c.call(ctx, tokenAddr, data)
	if err != nil {
		return nil, swaperr.Classify(fmt.Errorf("balanceOf call failed: %w", err), nil)
	}
	return new(big.Int).SetBytes(out), nil
}

// NativeBalance reads the account's native-currency balance.
func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.eth.BalanceAt(ctx, account, nil)
}

// Decimals reads a token contract's precision.
func (c *Client) Decimals(ctx context.Context, tokenAddr common.Address) (uint8, error) {
	data, err := c.erc20ABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("failed to pack decimals: %w", err)
	}
	out, err := c.call(ctx, tokenAddr, data)
	if err != nil {
		return 0, fmt.Errorf("decimals call failed: %w", err)
	}
	v := new(big.Int).SetBytes(out)
	if !v.IsUint64() || v.Uint64() > 255 {
		return 0, fmt.Errorf("decimals out of range: %s", v)
	}
	return uint8(v.Uint64()), nil
}

// AmountsOut performs the router's getAmountsOut read for a path, used as a
// chain-side dry run before execution.
func (c *Client) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	data, err := c.routerABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getAmountsOut: %w", err)
	}
	out, err := c.call(ctx, c.router, data)
	if err != nil {
		return nil, swaperr.Classify(fmt.Errorf("getAmountsOut call failed: %w", err), nil)
	}
	var amounts []*big.Int
	if err := c.routerABI.UnpackIntoInterface(&amounts, "getAmountsOut", out); err != nil {
		return nil, fmt.Errorf("failed to decode getAmountsOut result: %w", err)
	}
	return amounts, nil
}

// Submit signs and broadcasts an unsigned trade. Gas is estimated with a 20%
// buffer, falling back to the builder's hint when estimation fails.
func (c *Client) Submit(ctx context.Context, tx *txbuild.UnsignedTx) (common.Hash, error) {
	if c.privateKey == nil {
		return common.Hash{}, fmt.Errorf("no private key configured")
	}

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	nonce, err := c.eth.PendingNonceAt(callCtx, c.owner)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(callCtx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit := tx.GasHint
	estimated, err := c.eth.EstimateGas(callCtx, ethereum.CallMsg{
		From:  c.owner,
		To:    &tx.To,
		Value: tx.Value,
		Data:  tx.Data,
	})
	if err == nil {
		gasLimit = estimated * 120 / 100
	} else {
		c.log.Warn("gas estimation failed, using hint",
			zap.Uint64("hint", tx.GasHint),
			zap.Error(err))
	}

	raw := types.NewTransaction(nonce, tx.To, tx.Value, gasLimit, gasPrice, tx.Data)
	signed, err := types.SignTx(raw, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.eth.SendTransaction(callCtx, signed); err != nil {
		return common.Hash{}, swaperr.Classify(fmt.Errorf("failed to send transaction: %w", err), nil)
	}

	c.log.Info("transaction submitted",
		zap.String("hash", signed.Hash().Hex()),
		zap.String("kind", tx.Kind.String()),
		zap.Uint64("gas_limit", gasLimit))

	return signed.Hash(), nil
}

// WaitReceipt polls for the transaction receipt until ctx expires. A receipt
// with failed status is classified as an execution revert.
func (c *Client) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollEvery)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: tx %s", swaperr.ErrExecutionReverted, hash.Hex())
			}
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, swaperr.Classify(ctx.Err(), swaperr.ErrNetworkTimeout)
		case <-ticker.C:
		}
	}
}

// TransactionInfo reads basic data about a submitted transaction for status
// display.
func (c *Client) TransactionInfo(ctx context.Context, hash common.Hash) (map[string]interface{}, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	tx, isPending, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	info := map[string]interface{}{
		"hash":      tx.Hash().Hex(),
		"nonce":     tx.Nonce(),
		"gas_price": tx.GasPrice().String(),
		"gas_limit": tx.Gas(),
		"value":     tx.Value().String(),
		"pending":   isPending,
	}
	if tx.To() != nil {
		info["to"] = tx.To().Hex()
	}

	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if err == nil {
		info["block_number"] = receipt.BlockNumber.Uint64()
		info["gas_used"] = receipt.GasUsed
		info["status"] = receipt.Status
	} else if !isPending {
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}

	return info, nil
}
