package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"evm-swap/config"
	"evm-swap/pkg/token"
)

var filterSymbol string

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List all configured tokens",
	Long: `List the tokens this tool can quote and swap. The set comes from the
configuration file; the native currency and its wrapped form are marked.

Examples:
  evm-swap list-tokens
  evm-swap list-tokens --symbol USD`,
	Run: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
}

func runListTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	registry, err := cfg.Registry()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	tokens := registry.All()
	if filterSymbol != "" {
		var filtered []token.Token
		for _, t := range tokens {
			if strings.Contains(strings.ToUpper(t.Symbol), strings.ToUpper(filterSymbol)) {
				filtered = append(filtered, t)
			}
		}
		tokens = filtered
	}

	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Symbol < tokens[j].Symbol
	})

	if jsonOutput {
		type entry struct {
			Symbol        string `json:"symbol"`
			Address       string `json:"address"`
			Decimals      uint8  `json:"decimals"`
			Native        bool   `json:"native,omitempty"`
			WrappedNative bool   `json:"wrapped_native,omitempty"`
		}
		entries := make([]entry, 0, len(tokens))
		for _, t := range tokens {
			addr := t.Address.Hex()
			if t.Native {
				addr = ""
			}
			entries = append(entries, entry{
				Symbol:        t.Symbol,
				Address:       addr,
				Decimals:      t.Decimals,
				Native:        t.Native,
				WrappedNative: t.WrappedNative,
			})
		}
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(data))
		return
	}

	displayTokens(tokens)
}

func displayTokens(tokens []token.Token) {
	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	color.Green("                          CONFIGURED TOKENS")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	for _, t := range tokens {
		var note string
		switch {
		case t.Native:
			note = color.CyanString("native")
		case t.WrappedNative:
			note = color.CyanString("wrapped native")
		}

		address := t.Address.Hex()
		if t.Native {
			address = "-"
		}

		fmt.Printf("  %-8s  %2d decimals  %-44s %s\n",
			color.YellowString(t.Symbol),
			t.Decimals,
			color.HiBlackString(address),
			note)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Printf("\nTotal: %d tokens\n\n", len(tokens))
}
