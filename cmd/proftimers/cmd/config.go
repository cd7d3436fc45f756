package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/vanilla/proftimers/pkg/auth"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after merging defaults, the config file,
PROFTIMERS_* environment variables and flags.`,
	RunE: runConfigShow,
}

var configHashKeyCmd = &cobra.Command{
	Use:   "hash-key [key]",
	Short: "Hash an API key for serve.api_key_hash",
	Long: `Prints the bcrypt hash of the given API key. Without an argument a new
random key is generated and printed along with its hash.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigHashKey,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configHashKeyCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "# %s\n", used)
	}

	data, err := yaml.Marshal(appConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func runConfigHashKey(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 1 {
		hash, err := auth.HashAPIKey(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, hash)
		return nil
	}

	key, hash, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "key:  %s\nhash: %s\n", key, hash)
	return nil
}
