package cmd

import (
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

	"evm-swap/pkg/history"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status [tx-hash]",
	Short: "Check the status of a swap transaction",
	Long: `Check the on-chain status of a swap transaction by its hash. Without
an argument, show the local swap history instead.

Examples:
  evm-swap status 0x1234...abcd
  evm-swap status 0x1234...abcd --watch
  evm-swap status`,
	Args: cobra.MaximumNArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	st, err := newStack(verbose)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer st.Close()

	if len(args) == 0 {
		showHistory(st.cfg.HistoryFile, jsonOutput)
		return
	}

	if !strings.HasPrefix(args[0], "0x") || len(args[0]) != 66 {
		printError(fmt.Errorf("invalid transaction hash: %s", args[0]))
		os.Exit(1)
	}
	hash := common.HexToHash(args[0])

	if watchStatus {
		watchTxStatus(st, hash, jsonOutput)
	} else {
		checkTxStatus(st, hash, jsonOutput)
	}
}

func checkTxStatus(st *stack, hash common.Hash, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking transaction status..."
		s.Start()
	}

	info, err := st.client.TransactionInfo(context.Background(), hash)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(info, "", "  ")
		fmt.Println(string(data))
	} else {
		displayTxStatus(info)
	}
}

func watchTxStatus(st *stack, hash common.Hash, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching transaction %s\n", color.CyanString(hash.Hex()))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	for {
		info, err := st.client.TransactionInfo(context.Background(), hash)
		if err != nil {
			color.Red("Error: %v", err)
		} else {
			displayTxStatus(info)
			if pending, ok := info["pending"].(bool); ok && !pending {
				return
			}
		}
		<-ticker.C
	}
}

func displayTxStatus(info map[string]interface{}) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                    TRANSACTION STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Hash:       %s\n", color.CyanString(fmt.Sprint(info["hash"])))
	if to, ok := info["to"]; ok {
		fmt.Printf("  To:         %s\n", to)
	}
	fmt.Printf("  Nonce:      %v\n", info["nonce"])
	fmt.Printf("  Gas Price:  %v wei\n", info["gas_price"])

	if pending, ok := info["pending"].(bool); ok && pending {
		fmt.Printf("  Status:     %s\n", color.YellowString("PENDING"))
	} else if status, ok := info["status"]; ok {
		if fmt.Sprint(status) == "1" {
			fmt.Printf("  Status:     %s\n", color.GreenString("SUCCESS"))
		} else {
			fmt.Printf("  Status:     %s\n", color.RedString("REVERTED"))
		}
		if block, ok := info["block_number"]; ok {
			fmt.Printf("  Block:      %v\n", block)
		}
		if gasUsed, ok := info["gas_used"]; ok {
			fmt.Printf("  Gas Used:   %v\n", gasUsed)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func showHistory(path string, jsonOutput bool) {
	store, err := history.NewStore(path)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	records := store.All()

	if jsonOutput {
		data, _ := json.MarshalIndent(records, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(records) == 0 {
		fmt.Println("\nNo swaps recorded yet.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                               SWAP HISTORY")
	fmt.Println(strings.Repeat("=", 90))
	fmt.Println()

	for _, r := range records {
		state := r.State
		switch state {
		case "settled":
			state = color.GreenString(state)
		case "failed":
			state = color.RedString(state)
		default:
			state = color.YellowString(state)
		}

		fmt.Printf("  %s  %s %s -> %s %s  [%s]\n",
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.AmountIn, color.YellowString(r.FromSymbol),
			r.AmountOut, color.YellowString(r.ToSymbol),
			state)
		if r.TxHash != "" {
			fmt.Printf("      %s\n", color.HiBlackString(r.TxHash))
		}
		if r.Error != "" {
			fmt.Printf("      %s\n", color.RedString(r.Error))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90) + "\n")
}
