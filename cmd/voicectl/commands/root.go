package commands

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"voice-dashboard/pkg/config"
)

var (
	// Global flags
	verbose      bool
	configDir    string
	formatOutput string

	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "voicectl",
	Short: "Record, browse and play voice recordings",
	Long: `voicectl - command line client of the voice dashboard.

Recordings are stored in Supabase (or Postgres/MongoDB and S3, see
'voicectl config show'). Sign in once with 'voicectl login'; the session is
kept in the config directory until 'voicectl logout'.

Examples:
  voicectl login --email ada@example.com
  voicectl record --title "Standup notes"
  voicectl list --search standup
  voicectl play <id>
  voicectl import https://podcast.example.com --max 20`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !verbose {
			log.SetOutput(io.Discard)
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress and backend errors to stderr")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", os.Getenv("VOICECTL_CONFIG_DIR"), "configuration directory (default: OS config dir/voicectl)")
	rootCmd.PersistentFlags().StringVarP(&formatOutput, "format", "o", "table", "output format: table, yaml or json")
}

// GetConfig loads the configuration once per process.
func GetConfig() (*config.Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}
	var (
		cfg *config.Config
		err error
	)
	if configDir != "" {
		cfg, err = config.LoadFrom(configDir)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("config not available: %w", err)
	}
	globalConfig = cfg
	return cfg, nil
}
