// Package cli contains the cobra command tree.
package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/tavernier-bot/tavernier/internal/cli.version=1.2.3"
	version = "2.0.0"
	logo    = "\n" +
		"  _____                          _\n" +
		" |_   _|_ ___   _____ _ __ _ __ (_) ___ _ __\n" +
		"   | |/ _` \\ \\ / / _ \\ '__| '_ \\| |/ _ \\ '__|\n" +
		"   | | (_| |\\ V /  __/ |  | | | | |  __/ |\n" +
		"   |_|\\__,_| \\_/ \\___|_|  |_| |_|_|\\___|_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "tavernier",
	Short: "Tavernier - Discord community bot",
	Long:  color.CyanString(logo) + "\nVoice rooms, weekly activity levels and moderation for the Taverne.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
}
