package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tavernier-bot/tavernier/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ Tavernier Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 Tavernier Status")
		fmt.Printf("Version: %s\n", version)

		path, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(path); statErr == nil {
				fmt.Println("Config:  ✓ Found (" + path + ")")
			} else {
				fmt.Println("Config:  ✗ Not found (" + path + ")")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Println("Token:   ? Unable to load config")
			return
		}
		if cfg.Bot.Token != "" {
			fmt.Println("Token:   ✓ Found")
		} else {
			fmt.Println("Token:   ✗ Not found (set TAVERNIER_BOT_TOKEN)")
		}
		if cfg.Bot.GuildID != "" {
			fmt.Println("Guild:   ✓ " + cfg.Bot.GuildID)
		} else {
			fmt.Println("Guild:   ✗ Not configured")
		}
		if _, err := os.Stat(cfg.Storage.DBPath); err == nil {
			fmt.Println("Store:   ✓ " + cfg.Storage.DBPath)
		} else {
			fmt.Println("Store:   ✗ Not created yet (" + cfg.Storage.DBPath + ")")
		}
		fmt.Println("Status:  Ready")
	},
}
