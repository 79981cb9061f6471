package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kamir/giftbot/internal/config"
	"github.com/kamir/giftbot/internal/dedup"
	"github.com/kamir/giftbot/internal/dispatch"
	"github.com/kamir/giftbot/internal/hive"
	"github.com/kamir/giftbot/internal/ledger"
	"github.com/kamir/giftbot/internal/notify"
	"github.com/kamir/giftbot/internal/render"
	"github.com/kamir/giftbot/internal/source"
	"github.com/kamir/giftbot/internal/wallet"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the chain and hand out gifts",
	Run:   runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) {
	printHeader("🍕 giftbot")

	cfg := mustLoadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := dispatch.SettingsFromConfig(cfg)
	if err != nil {
		fatalf("Config error: %v", err)
	}

	if err := config.EnsureDir(cfg.State.Dir); err != nil {
		fatalf("State dir: %v", err)
	}
	gifts, err := ledger.Open(cfg.State.GiftDB)
	if err != nil {
		fatalf("Failed to open gift ledger: %v", err)
	}
	defer gifts.Close()

	cur, curCloser, err := openCursor(cfg)
	if err != nil {
		fatalf("Failed to open cursor store: %v", err)
	}
	defer curCloser.Close()

	timeout := config.Millis(cfg.Hive.TimeoutMs)
	broadcaster := hive.NewBroadcaster(cfg.Hive.BroadcasterURL, cfg.Hive.BroadcasterToken, timeout)
	chain := hive.NewClient(cfg.Hive.APINode, timeout, broadcaster)
	tokens := wallet.New(cfg.Hive.EngineRPC, timeout, broadcaster)

	renderer, err := render.New(cfg.Templates.Dir)
	if err != nil {
		fatalf("Failed to load templates: %v", err)
	}

	src, err := buildSource(cfg, chain)
	if err != nil {
		fatalf("Source error: %v", err)
	}

	var notifier *notify.Notifier
	if cfg.Features.Notifications {
		sinks, cleanup, err := buildSinks(ctx, cfg)
		if err != nil {
			fatalf("Notification setup failed: %v", err)
		}
		defer cleanup()
		notifier = notify.New(sinks, notify.Options{
			QueueSize:   cfg.Notify.QueueSize,
			SendTimeout: config.Millis(cfg.Notify.SendTimeoutMs),
		})
	}

	opts := dispatch.Options{
		Settings: settings,
		Policy:   dispatch.PolicyFromConfig(cfg),
		Source:   src,
		Dedup:    dedup.New(chain, cfg.Account.Name),
		Replies:  chain,
		Wallet:   tokens,
		Ledger:   gifts,
		Cursor:   cur,
		Renderer: renderer,
	}
	if notifier != nil {
		opts.Notifier = notifier
	}
	engine := dispatch.New(opts)

	fmt.Printf("Account: %s  token: %s  source: %s\n", cfg.Account.Name, cfg.Engine.TokenName, cfg.Source.Type)
	if err := engine.Run(ctx); err != nil {
		slog.Error("Engine stopped with error", "error", err)
	}

	if notifier != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := notifier.Close(closeCtx); err != nil {
			slog.Warn("Pending notifications lost", "error", err)
		}
	}
	fmt.Println("giftbot stopped.")
}

func buildSource(cfg *config.Config, chain *hive.Client) (source.Source, error) {
	switch cfg.Source.Type {
	case config.SourceKafka:
		k := cfg.Source.Kafka
		slog.Info("Reading events from Kafka", "brokers", k.Brokers, "topic", k.Topic, "partition", k.Partition)
		return source.NewKafkaSource(k.Brokers, k.Topic, k.Partition), nil
	case config.SourceHive, "":
		return hive.NewBlockSource(chain, cfg.Source.StartBlock, config.Millis(cfg.Source.PollIntervalMs), cfg.Source.Prefetch), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
}

// buildSinks creates the enabled notification sinks. cleanup releases their
// connections and must run after the notifier is closed.
func buildSinks(ctx context.Context, cfg *config.Config) ([]notify.Sink, func(), error) {
	var (
		sinks    []notify.Sink
		closers  []func()
		n        = cfg.Notify
		identity = cfg.Notify.Identity
	)
	if identity == "" {
		identity = cfg.Account.Name
	}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if n.Log {
		sinks = append(sinks, notify.LogSink{})
	}
	if n.Discord.Enabled {
		d, err := notify.NewDiscordSink(n.Discord.WebhookURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		sinks = append(sinks, d)
	}
	if n.WhatsApp.Enabled {
		w, err := notify.NewWhatsAppSink(notify.WhatsAppConfig{
			SessionDB:  n.WhatsApp.SessionDB,
			QRPath:     n.WhatsApp.QRPath,
			Recipients: n.WhatsApp.Recipients,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := w.Start(ctx); err != nil {
			_ = w.Stop()
			cleanup()
			return nil, nil, fmt.Errorf("start whatsapp: %w", err)
		}
		sinks = append(sinks, w)
		closers = append(closers, func() {
			if err := w.Stop(); err != nil {
				slog.Warn("WhatsApp stop failed", "error", err)
			}
		})
	}
	if n.Kafka.Enabled {
		k := notify.NewKafkaSink(n.Kafka.Brokers, n.Kafka.Topic, identity)
		sinks = append(sinks, k)
		closers = append(closers, func() {
			if err := k.Close(); err != nil {
				slog.Warn("Kafka sink close failed", "error", err)
			}
		})
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	slog.Info("Notification sinks ready", "sinks", names)
	return sinks, cleanup, nil
}
