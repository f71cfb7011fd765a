package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"evm-swap/pkg/engine"
	"evm-swap/pkg/history"
	"evm-swap/pkg/parser"
	"evm-swap/pkg/quote"
	"evm-swap/pkg/sim"
	"evm-swap/pkg/token"
	"evm-swap/pkg/txbuild"
)

var (
	slippageBps   uint32
	noConfirm     bool
	swapTimeout   int
	recipientAddr string
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> to <dest-token>",
	Short: "Execute a token swap",
	Long: `Swap tokens through the configured Uniswap V2-compatible router.

The trade is quoted from live reserves, bounded by your slippage tolerance,
dry-run before execution, and only submitted after you confirm the preview.
Swapping between the native currency and its wrapped form is a 1:1
conversion, not a trade.

Examples:
  evm-swap swap 1 ETH to USDC
  evm-swap swap 0.5 ETH to DAI --slippage 100
  evm-swap swap 5 ETH to WETH
  evm-swap swap 100 USDC to ETH --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().Uint32Var(&slippageBps, "slippage", 0, "Slippage tolerance in basis points (default from config)")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	swapCmd.Flags().IntVar(&swapTimeout, "timeout", 300, "Overall timeout in seconds")
	swapCmd.Flags().StringVar(&recipientAddr, "recipient", "", "Recipient address (default: your own)")
}

func runSwap(cmd *cobra.Command, args []string) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	req, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	st, err := newStack(verbose)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer st.Close()

	if st.cfg.PrivateKey == "" {
		printError(fmt.Errorf("private key not configured. Set EVM_SWAP_PRIVATE_KEY to execute swaps"))
		os.Exit(1)
	}

	from, to, amountIn, err := resolveRequest(st.registry, req)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	tolerance := st.cfg.SlippageBps
	if slippageBps > 0 {
		tolerance = slippageBps
	}

	builder, err := txbuild.NewBuilder(st.cfg.Router(), st.registry.WrappedNative().Address)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	var simulator engine.Simulator
	if st.cfg.SimulationURL != "" {
		simulator = sim.NewClient(st.cfg.SimulationURL, st.cfg.ChainID)
	}

	var recipient common.Address
	if recipientAddr != "" {
		if !common.IsHexAddress(recipientAddr) {
			printError(fmt.Errorf("invalid recipient address: %s", recipientAddr))
			os.Exit(1)
		}
		recipient = common.HexToAddress(recipientAddr)
	}

	states := make(chan engine.Intent, 32)
	ctrl := engine.NewController(st.service, builder, st.client, simulator, st.client.Owner(), engine.Options{
		ToleranceBps: tolerance,
		Debounce:     st.cfg.Debounce(),
		Recipient:    recipient,
		OnTransition: func(it engine.Intent) {
			select {
			case states <- it:
			default:
			}
		},
	}, st.log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(swapTimeout)*time.Second)
	defer cancel()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	if err := ctrl.SetInput(ctx, from, to, amountIn); err != nil {
		if !jsonOutput {
			s.Stop()
		}
		printError(err)
		os.Exit(1)
	}

	it, err := waitForPreview(ctx, ctrl, states)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	// Approval gating: the engine observes the approval transaction, it
	// does not drive it.
	if it.State == engine.StateAwaitingApproval {
		it, err = handleApproval(ctx, ctrl, states, from, st.cfg.RouterAddr, jsonOutput)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
	}

	// A price-feed estimate stops at Quoted and cannot be executed.
	if it.State == engine.StateQuoted && it.Quote.Source == quote.SourcePriceFallback {
		if !jsonOutput {
			displayQuote(it.Quote, from, to)
		}
		printError(fmt.Errorf("no on-chain route for %s -> %s; the shown value is an estimate and cannot be traded", from.Symbol, to.Symbol))
		os.Exit(1)
	}

	if it.State != engine.StatePreviewReady {
		printError(fmt.Errorf("unexpected state %s", it.State))
		os.Exit(1)
	}

	if jsonOutput {
		displayPreviewJSON(it, from, to)
	} else {
		displayPreview(it, from, to)
	}

	if !noConfirm && !jsonOutput {
		if !confirmSwap() {
			_ = ctrl.Cancel()
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	if !jsonOutput {
		s.Suffix = " Executing swap..."
		s.Start()
	}

	execErr := ctrl.Confirm(ctx)
	final := ctrl.Intent()
	if !jsonOutput {
		s.Stop()
	}

	recordHistory(st.cfg.HistoryFile, final, from, to)

	if execErr != nil {
		printError(execErr)
		os.Exit(1)
	}

	if jsonOutput {
		output := map[string]interface{}{
			"status":  string(final.State),
			"tx_hash": final.TxHash.Hex(),
		}
		data, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(data))
	} else {
		color.Green("\n✓ Swap settled!")
		fmt.Printf("  Transaction: %s\n", color.CyanString(final.TxHash.Hex()))
		fmt.Println("\nYou can inspect the transaction using:")
		color.Cyan("  evm-swap status %s\n", final.TxHash.Hex())
	}
}

// waitForPreview consumes state transitions until the intent reaches a
// decision point: PreviewReady, AwaitingApproval, a fallback-tagged Quoted,
// or a terminal state.
func waitForPreview(ctx context.Context, ctrl *engine.Controller, states <-chan engine.Intent) (engine.Intent, error) {
	for {
		select {
		case it := <-states:
			switch {
			case it.State == engine.StatePreviewReady || it.State == engine.StateAwaitingApproval:
				return it, nil
			case it.State == engine.StateQuoted && it.Quote != nil && it.Quote.Source == quote.SourcePriceFallback:
				return it, nil
			case it.State == engine.StateFailed:
				return it, it.Err
			case it.State == engine.StateCancelled:
				return it, fmt.Errorf("swap cancelled")
			}
		case <-ctx.Done():
			return engine.Intent{}, fmt.Errorf("timed out waiting for quote")
		}
	}
}

// handleApproval tells the user what to approve and resumes once they
// report the approval as settled.
func handleApproval(ctx context.Context, ctrl *engine.Controller, states <-chan engine.Intent, from token.Token, router string, jsonOutput bool) (engine.Intent, error) {
	if jsonOutput || noConfirm {
		return engine.Intent{}, fmt.Errorf("router allowance for %s is insufficient; approve spender %s and retry", from.Symbol, router)
	}

	color.Yellow("\nApproval required: the router is not authorized to spend your %s.", from.Symbol)
	fmt.Printf("  Token:   %s\n", from.Address.Hex())
	fmt.Printf("  Spender: %s\n", router)
	fmt.Print("\nSubmit the approval with your wallet, then press Enter to continue (or 'q' to abort): ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil || strings.TrimSpace(strings.ToLower(line)) == "q" {
		_ = ctrl.Cancel()
		return engine.Intent{}, fmt.Errorf("swap cancelled")
	}

	if err := ctrl.ApprovalSettled(ctx); err != nil {
		return engine.Intent{}, err
	}
	return waitForPreview(ctx, ctrl, states)
}

func displayPreview(it engine.Intent, from, to token.Token) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP PREVIEW")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:           %s %s\n", token.FormatAmount(it.AmountIn, from.Decimals), color.YellowString(from.Symbol))
	fmt.Printf("  To:             ~%s %s\n", token.FormatAmount(it.Quote.AmountOut, to.Decimals), color.YellowString(to.Symbol))
	fmt.Printf("  Minimum Out:    %s %s\n", token.FormatAmount(it.Bound.MinAmountOut, to.Decimals), to.Symbol)
	fmt.Printf("  Price Impact:   %.2f%%\n", float64(it.Quote.PriceImpactBps)/100)
	fmt.Printf("  Call:           %s\n", it.Tx.Kind)
	fmt.Printf("  Deadline:       %s\n", it.Bound.Deadline.Format(time.RFC3339))

	if it.Sim != nil {
		if it.Sim.GasFeeUSD > 0 {
			fmt.Printf("  Gas Fee (est):  $%.2f\n", it.Sim.GasFeeUSD)
		}
		for _, w := range it.Sim.Warnings {
			color.Yellow("  ⚠ %s", w)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func displayPreviewJSON(it engine.Intent, from, to token.Token) {
	output := map[string]interface{}{
		"from":             from.Symbol,
		"to":               to.Symbol,
		"amount_in":        token.FormatAmount(it.AmountIn, from.Decimals),
		"amount_out":       token.FormatAmount(it.Quote.AmountOut, to.Decimals),
		"min_amount_out":   token.FormatAmount(it.Bound.MinAmountOut, to.Decimals),
		"price_impact_bps": it.Quote.PriceImpactBps,
		"call":             it.Tx.Kind.String(),
		"deadline":         it.Bound.Deadline.Unix(),
	}
	data, _ := json.MarshalIndent(output, "", "  ")
	fmt.Println(string(data))
}

func recordHistory(path string, it engine.Intent, from, to token.Token) {
	store, err := history.NewStore(path)
	if err != nil {
		return
	}
	rec := history.Record{
		Timestamp:  time.Now(),
		FromSymbol: from.Symbol,
		ToSymbol:   to.Symbol,
		State:      string(it.State),
	}
	if it.AmountIn != nil {
		rec.AmountIn = token.FormatAmount(it.AmountIn, from.Decimals)
	}
	if it.Quote != nil {
		rec.AmountOut = token.FormatAmount(it.Quote.AmountOut, to.Decimals)
	}
	if it.TxHash != (common.Hash{}) {
		rec.TxHash = it.TxHash.Hex()
	}
	if it.Err != nil {
		rec.Error = it.Err.Error()
	}
	_ = store.Append(rec)
}

func confirmSwap() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with swap? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
