package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"voice-dashboard/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize the configuration",
	Long: `Settings are read from config.yaml in the config directory, then from
environment variables (SUPABASE_URL, SUPABASE_KEY, SUPABASE_DB_PASSWORD,
DATABASE_URL, MONGO_URI, N8N_WEBHOOK_URL, S3_*, VOICECTL_*).`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		shown := *cfg
		shown.Supabase.DBPassword = mask(shown.Supabase.DBPassword)
		shown.S3.SecretAccessKey = mask(shown.S3.SecretAccessKey)
		return printValue(cmd.OutOrStdout(), &shown)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write config.yaml with the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		path := filepath.Join(cfg.Dir, "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := configDir
		if dir == "" {
			var err error
			if dir, err = config.Dir(); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), dir)
		return nil
	},
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func init() {
	configCmd.AddCommand(configShowCmd, configInitCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
