package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "giftbot",
	Short: "Hive token gifting bot",
	Long:  "giftbot watches Hive for gift commands and sends Hive-Engine tokens to the post author.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func printHeader(title string) {
	color.New(color.FgCyan, color.Bold).Println(title)
	fmt.Println()
}

func fatalf(format string, args ...any) {
	color.New(color.FgRed).Printf(format+"\n", args...)
	os.Exit(1)
}
