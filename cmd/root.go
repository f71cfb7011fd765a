package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "evm-swap",
	Short: "A CLI for token swaps on Uniswap V2-compatible routers",
	Long: `evm-swap is a command-line tool for quoting and executing token swaps
against a Uniswap V2-compatible router on any EVM chain. It routes directly
or through the wrapped-native hub, applies slippage protection, dry-runs the
trade before execution, and handles wrap/unwrap as a 1:1 conversion.

Examples:
  evm-swap quote 1 ETH to USDC
  evm-swap swap 0.5 ETH to DAI --slippage 100
  evm-swap swap 5 ETH to WETH
  evm-swap list-tokens
  evm-swap status <tx-hash>`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
