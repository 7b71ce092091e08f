package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conclave-ai/conclave/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "conclave",
	Short: "AI council deliberation orchestrator",
	Long: `Conclave convenes a council of AI personas to deliberate on a topic,
debate a motion to a formal vote, or produce an ensemble forecast.
Sessions run against any OpenAI-compatible backend (a local LM Studio
server by default) and are persisted for later inspection.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/conclave/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/conclave")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("CONCLAVE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., CONCLAVE_RESPONDER_BASE_URL for responder.base_url
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
