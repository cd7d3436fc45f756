package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vanilla/proftimers/internal/report"
	"github.com/vanilla/proftimers/pkg/store"
)

var reportLimit int

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "List stored timer summaries",
	Long:  `Reads the most recent summaries from the configured store, newest first.`,
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().IntVarP(&reportLimit, "limit", "l", 20, "maximum number of summaries (0 for all)")
}

func runReport(cmd *cobra.Command, args []string) error {
	st, err := store.NewStore(appConfig.Store.ToStore())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	summaries, err := st.Recent(reportLimit)
	if err != nil {
		return fmt.Errorf("failed to read summaries: %w", err)
	}

	out := cmd.OutOrStdout()
	if IsJSONOutput() {
		output, err := json.MarshalIndent(map[string]interface{}{
			"summaries": summaries,
			"count":     len(summaries),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	if len(summaries) == 0 {
		fmt.Fprintln(out, "No summaries stored")
		return nil
	}
	if err := report.RenderSummaries(out, summaries); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nTotal summaries: %d\n", len(summaries))
	return nil
}
