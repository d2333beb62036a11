package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sitewatch/internal/api/client"
	"github.com/sitewatch/internal/cli/commands"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "sitewatch-cli",
	Short: "SiteWatch CLI - site outage alerting and incident management",
	Long: `sitewatch-cli talks to a running SiteWatch server. It triggers monitoring
passes, manages incidents and post-mortems, and inspects notification delivery.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("server", client.DefaultBaseURL, "SiteWatch server URL")
	rootCmd.PersistentFlags().Duration("timeout", 2*time.Minute, "Request timeout")
	viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.SetEnvPrefix("sitewatch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Add commands
	rootCmd.AddCommand(commands.NewScanCommand())
	rootCmd.AddCommand(commands.NewPollingCommand())
	rootCmd.AddCommand(commands.NewSitesCommand())
	rootCmd.AddCommand(commands.NewEventsCommand())
	rootCmd.AddCommand(commands.NewPostMortemCommand())
	rootCmd.AddCommand(commands.NewNotificationsCommand())
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
