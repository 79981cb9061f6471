package cmd

import (
	"fmt"
	"os"

	"github.com/kamir/giftbot/internal/config"
	"github.com/spf13/cobra"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize configuration",
	Run:   runOnboard,
}

var onboardForce bool

func init() {
	onboardCmd.Flags().BoolVarP(&onboardForce, "force", "f", false, "Overwrite existing config.json")
	rootCmd.AddCommand(onboardCmd)
}

func runOnboard(cmd *cobra.Command, args []string) {
	printHeader("🍕 giftbot onboard")

	path, err := config.ConfigPath()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if _, err := os.Stat(path); err == nil && !onboardForce {
		fmt.Printf("Config already exists at: %s\n", path)
		fmt.Println("Use --force (-f) to overwrite.")
		return
	}

	cfg := config.DefaultConfig()
	if err := config.SaveFile(cfg, path); err != nil {
		fmt.Printf("Error writing config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Config created at: %s\n", path)

	if err := config.EnsureDir(cfg.State.Dir); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}

	fmt.Println("\nNext steps:")
	fmt.Println("1. Set account.name and the broadcaster endpoint in the config.")
	fmt.Println("2. Run 'giftbot run' to start watching the chain.")
}
