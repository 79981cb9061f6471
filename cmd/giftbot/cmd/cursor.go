package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kamir/giftbot/internal/config"
	"github.com/kamir/giftbot/internal/event"
	"github.com/spf13/cobra"
)

var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Inspect or move the stream cursor",
}

var cursorShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the last handled position",
	Run:   runCursorShow,
}

var cursorSetCmd = &cobra.Command{
	Use:   "set <position>",
	Short: "Move the cursor forward to position",
	Args:  cobra.ExactArgs(1),
	Run:   runCursorSet,
}

func init() {
	cursorCmd.AddCommand(cursorShowCmd, cursorSetCmd)
	rootCmd.AddCommand(cursorCmd)
}

func runCursorShow(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig()
	store, closer, err := openCursor(cfg)
	if err != nil {
		fatalf("Failed to open cursor store: %v", err)
	}
	defer closer.Close()

	pos, ok, err := store.Load(context.Background())
	if err != nil {
		fatalf("Failed to read cursor: %v", err)
	}
	if !ok {
		fmt.Println("No cursor saved yet.")
		return
	}
	printPosition(cfg.Source.Type, pos)
}

func runCursorSet(cmd *cobra.Command, args []string) {
	pos, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fatalf("Invalid position %q: %v", args[0], err)
	}
	cfg := mustLoadConfig()
	store, closer, err := openCursor(cfg)
	if err != nil {
		fatalf("Failed to open cursor store: %v", err)
	}
	defer closer.Close()

	if err := store.Save(context.Background(), pos); err != nil {
		fatalf("Failed to save cursor: %v", err)
	}
	fmt.Print("✅ Cursor set. ")
	printPosition(cfg.Source.Type, pos)
}

func printPosition(sourceType string, pos uint64) {
	if sourceType == config.SourceKafka {
		fmt.Printf("Position: %d (offset)\n", pos)
		return
	}
	block, index := event.SplitPosition(pos)
	fmt.Printf("Position: %d (block %d, op %d)\n", pos, block, index)
}
