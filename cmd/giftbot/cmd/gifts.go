package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/kamir/giftbot/internal/dispatch"
	"github.com/kamir/giftbot/internal/ledger"
	"github.com/kamir/giftbot/internal/policy"
	"github.com/spf13/cobra"
)

var giftsCmd = &cobra.Command{
	Use:   "gifts",
	Short: "Query the gift ledger",
}

var giftsTodayCmd = &cobra.Command{
	Use:   "today <account>",
	Short: "List today's gifts sent on behalf of account",
	Args:  cobra.ExactArgs(1),
	Run:   runGiftsToday,
}

var giftsDecisionsCmd = &cobra.Command{
	Use:   "decisions <account>",
	Short: "Show recent policy decisions for account",
	Args:  cobra.ExactArgs(1),
	Run:   runGiftsDecisions,
}

var giftsLimit, decisionsLimit int

func init() {
	giftsTodayCmd.Flags().IntVarP(&giftsLimit, "limit", "n", 50, "Maximum gifts to list")
	giftsDecisionsCmd.Flags().IntVarP(&decisionsLimit, "limit", "n", 20, "Maximum decisions to list")
	giftsCmd.AddCommand(giftsTodayCmd, giftsDecisionsCmd)
	rootCmd.AddCommand(giftsCmd)
}

func runGiftsToday(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig()
	loc, err := cfg.Location()
	if err != nil {
		fatalf("Config error: %v", err)
	}
	gifts, err := ledger.Open(cfg.State.GiftDB)
	if err != nil {
		fatalf("Failed to open gift ledger: %v", err)
	}
	defer gifts.Close()

	ctx := context.Background()
	account := args[0]
	day := ledger.Day(time.Now(), loc)

	count, err := gifts.CountToday(ctx, account, day)
	if err != nil {
		fatalf("Query failed: %v", err)
	}
	list, err := gifts.ListGifts(ctx, ledger.FilterArgs{Invoker: account, Day: day, Limit: giftsLimit})
	if err != nil {
		fatalf("Query failed: %v", err)
	}

	fmt.Printf("%s sent %d gift(s) on %s", account, count, day)
	if d := dispatch.PolicyFromConfig(cfg).Evaluate(account, 0, 0, count); d.Reason == policy.ReasonAllowListed {
		fmt.Printf(" (allow-listed, limit %d)", d.MaxDailyGifts)
	}
	fmt.Println()
	for _, g := range list {
		fmt.Printf("  %s  -> %-16s  position %d\n", g.CreatedAt.In(loc).Format("15:04:05"), g.Recipient, g.SourcePosition)
	}
}

func runGiftsDecisions(cmd *cobra.Command, args []string) {
	cfg := mustLoadConfig()
	gifts, err := ledger.Open(cfg.State.GiftDB)
	if err != nil {
		fatalf("Failed to open gift ledger: %v", err)
	}
	defer gifts.Close()

	recs, err := gifts.ListDecisions(context.Background(), args[0], decisionsLimit)
	if err != nil {
		fatalf("Query failed: %v", err)
	}
	if len(recs) == 0 {
		fmt.Printf("No decisions recorded for %s.\n", args[0])
		return
	}
	for _, r := range recs {
		verdict := "denied"
		if r.Allowed {
			verdict = "allowed"
		}
		fmt.Printf("  %s  %-7s tier %d  %-20s -> %s\n",
			r.CreatedAt.Format(time.RFC3339), verdict, r.Tier, r.Reason, r.Recipient)
	}
}
