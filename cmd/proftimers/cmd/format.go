package cmd

import (
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vanilla/proftimers/pkg/timers"
)

// formatCmd represents the format command
var formatCmd = &cobra.Command{
	Use:   "format <ms>...",
	Short: "Format millisecond durations the way timer logs do",
	Example: `  proftimers format 0.4 1500 90000
  400μs
  1.5s
  1.5m`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFormat,
}

func init() {
	rootCmd.AddCommand(formatCmd)
}

func runFormat(cmd *cobra.Command, args []string) error {
	for _, arg := range args {
		ms, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", arg, err)
		}
		if math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 {
			return fmt.Errorf("invalid duration %q: must be finite and non-negative", arg)
		}
		fmt.Fprintln(cmd.OutOrStdout(), timers.FormatDuration(ms))
	}
	return nil
}
