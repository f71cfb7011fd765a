package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"evm-swap/pkg/parser"
	"evm-swap/pkg/quote"
	"evm-swap/pkg/token"
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <source-token> to <dest-token>",
	Short: "Quote a swap without executing it",
	Long: `Quote a token swap against the configured router without sending
anything. The quote is computed from live pool reserves; when no pool route
exists, a price-feed estimate is shown instead and clearly marked as such.

Examples:
  evm-swap quote 1 ETH to USDC
  evm-swap quote 250 DAI to WETH
  evm-swap quote 5 ETH to WETH`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}

func runQuote(cmd *cobra.Command, args []string) {
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

	from, to, amountIn, err := resolveRequest(st.registry, req)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	q, err := st.service.QuoteExactIn(context.Background(), from, to, amountIn)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		output := map[string]interface{}{
			"from":             from.Symbol,
			"to":               to.Symbol,
			"amount_in":        token.FormatAmount(q.AmountIn, from.Decimals),
			"amount_out":       token.FormatAmount(q.AmountOut, to.Decimals),
			"price_impact_bps": q.PriceImpactBps,
			"source":           q.Source.String(),
		}
		data, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(data))
		return
	}

	displayQuote(q, from, to)
}

// resolveRequest maps a parsed command onto registry tokens and base units.
func resolveRequest(registry *token.Registry, req *parser.SwapRequest) (token.Token, token.Token, *big.Int, error) {
	from, err := registry.Lookup(req.SourceToken)
	if err != nil {
		return token.Token{}, token.Token{}, nil, err
	}
	to, err := registry.Lookup(req.DestToken)
	if err != nil {
		return token.Token{}, token.Token{}, nil, err
	}
	amountIn, err := token.ParseAmount(req.Amount, from.Decimals)
	if err != nil {
		return token.Token{}, token.Token{}, nil, err
	}
	if amountIn.Sign() == 0 {
		return token.Token{}, token.Token{}, nil, fmt.Errorf("amount must be greater than 0")
	}
	return from, to, amountIn, nil
}

func displayQuote(q *quote.Quote, from, to token.Token) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:          %s %s\n", token.FormatAmount(q.AmountIn, from.Decimals), color.YellowString(from.Symbol))
	fmt.Printf("  To:            ~%s %s\n", token.FormatAmount(q.AmountOut, to.Decimals), color.YellowString(to.Symbol))
	fmt.Printf("  Price Impact:  %.2f%%\n", float64(q.PriceImpactBps)/100)
	fmt.Printf("  Route:         %s\n", q.Route.String())

	if q.Source == quote.SourcePriceFallback {
		color.Yellow("\n  ⚠ No on-chain route found. This is a price-feed ESTIMATE,")
		color.Yellow("    not a tradable quote, and cannot be executed.")
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
