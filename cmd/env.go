package cmd

import (
	"strings"

	"go.uber.org/zap"

	"evm-swap/config"
	"evm-swap/pkg/chain"
	"evm-swap/pkg/quote"
	"evm-swap/pkg/token"
)

// stack bundles the wired components every command starts from.
type stack struct {
	cfg      *config.Config
	registry *token.Registry
	client   *chain.Client
	service  *quote.Service
	log      *zap.Logger
}

// newStack loads configuration and connects the chain client and quoting
// pipeline. Commands that submit transactions additionally require a
// configured private key.
func newStack(verbose bool) (*stack, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := zap.NewNop()
	if verbose {
		if dev, err := zap.NewDevelopment(); err == nil {
			log = dev
		}
	}

	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	client, err := chain.NewClient(chain.Config{
		RPCURL:     cfg.RPCURL,
		ChainID:    cfg.ChainID,
		Factory:    cfg.Factory(),
		Router:     cfg.Router(),
		PrivateKey: cfg.PrivateKey,
		Timeout:    cfg.Timeout(),
	}, log)
	if err != nil {
		return nil, err
	}

	var prices quote.PriceSource
	if len(cfg.Prices) > 0 {
		upper := make(quote.StaticPrices, len(cfg.Prices))
		for sym, p := range cfg.Prices {
			upper[strings.ToUpper(sym)] = p
		}
		prices = upper
	}

	service := quote.NewService(registry, quote.NewQuoter(client), prices, log)

	return &stack{
		cfg:      cfg,
		registry: registry,
		client:   client,
		service:  service,
		log:      log,
	}, nil
}

func (s *stack) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
