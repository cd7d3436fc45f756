package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vanilla/proftimers/internal/config"
	"github.com/vanilla/proftimers/pkg/logging"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=..."
var Version = "dev"

var (
	cfgFile      string
	outputFormat string

	appConfig *config.Config
	logger    *logging.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "proftimers",
	Short: "Named interval timers for profiling",
	Long: `proftimers measures named intervals of work, warns when a timer runs
longer than its limit and logs one summary per unit of work.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// ExecuteContext adds all child commands to the root command and runs it
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.proftimers/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".proftimers"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing default config file is fine; defaults and env apply
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		}
	}
}

// loadConfig decodes the effective configuration and builds the logger
func loadConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	l, err := cfg.Log.NewLogger("proftimers")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	appConfig = cfg
	logger = l
	return nil
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}
