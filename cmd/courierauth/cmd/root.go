package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	settings   *Settings
)

var rootCmd = &cobra.Command{
	Use:   "courierauth",
	Short: "OTP sign-in, session tokens and rate limiting for the delivery platform",
	Long: `courierauth issues one-time codes over SMS and email, exchanges them for
signed session tokens, and rate limits every step per phone, email and IP.

Configuration is read from --config (or ./courierauth.yaml), then from
COURIERAUTH_* environment variables; a .env file is loaded first if present.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := LoadSettings(configPath)
		if err != nil {
			return err
		}
		settings = s
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (yaml, json or toml)")
}
