package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vanilla/proftimers/internal/report"
	"github.com/vanilla/proftimers/internal/runner"
	"github.com/vanilla/proftimers/pkg/store"
	"github.com/vanilla/proftimers/pkg/timers"
)

var (
	execName    string
	execLimitMs float64
	execSave    bool
)

// execCmd represents the exec command
var execCmd = &cobra.Command{
	Use:   "exec [flags] -- command [args...]",
	Short: "Time a command",
	Long: `Runs a command under a named timer, logs the timer summary and prints it
as a table. The exit code of the command is passed through.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().StringVarP(&execName, "name", "n", "", "timer name (default is the command name)")
	execCmd.Flags().Float64Var(&execLimitMs, "limit-ms", 0, "warn when the command runs longer than this many milliseconds")
	execCmd.Flags().BoolVar(&execSave, "save", false, "save the summary to the configured store")
}

func runExec(cmd *cobra.Command, args []string) error {
	name := execName
	if name == "" {
		name = args[0]
	}

	reg := timers.New(
		timers.WithLogger(logger),
		timers.WithWarningLimits(appConfig.WarningLimits()),
		timers.WithCustomTimers(appConfig.Timers.Custom...),
	)
	if execLimitMs > 0 {
		reg.SetWarningLimit(name, time.Duration(execLimitMs*float64(time.Millisecond)))
	}

	result, err := runner.Run(cmd.Context(), reg, name, args[0], args[1:], runner.Options{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	if err != nil {
		return err
	}

	summary := reg.LogAll(logger, "exec",
		timers.WithRequestStart(result.StartedAt),
		timers.WithPeakMemory(result.PeakMemory),
		timers.WithRequestID(uuid.NewString()),
	)

	if execSave {
		if err := saveSummary(&summary); err != nil {
			return err
		}
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(map[string]interface{}{
			"result":  result,
			"summary": summary,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), string(output))
	} else if err := report.RenderSummary(cmd.ErrOrStderr(), summary); err != nil {
		return err
	}

	if result.ExitCode != 0 {
		return &exitError{code: result.ExitCode}
	}
	return nil
}

func saveSummary(summary *timers.Summary) error {
	st, err := store.NewStore(appConfig.Store.ToStore())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if err := st.Save(summary); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// exitError carries a child's exit code up to main
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.code)
}

// ExitCode returns the process exit code for err
func ExitCode(err error) int {
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	return 1
}
