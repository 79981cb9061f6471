package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kamir/giftbot/internal/config"
	"github.com/kamir/giftbot/internal/cursor"
	"github.com/kamir/giftbot/internal/hive"
	"github.com/kamir/giftbot/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Account.Name = "giftbot"
	dir := t.TempDir()
	cfg.State.Dir = dir
	cfg.State.GiftDB = filepath.Join(dir, "gifts.db")
	cfg.State.CursorPath = filepath.Join(dir, "cursor")
	return cfg
}

func TestOpenCursorByKind(t *testing.T) {
	for _, kind := range []string{config.CursorFile, config.CursorSQLite} {
		t.Run(kind, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.State.CursorStore = kind

			store, closer, err := openCursor(cfg)
			require.NoError(t, err)
			defer closer.Close()

			ctx := context.Background()
			_, ok, err := store.Load(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Save(ctx, 42))
			pos, ok, err := store.Load(ctx)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, uint64(42), pos)

			if kind == config.CursorSQLite {
				assert.IsType(t, &cursor.SQLiteStore{}, store)
			} else {
				assert.IsType(t, &cursor.FileStore{}, store)
			}
		})
	}
}

func TestBuildSource(t *testing.T) {
	cfg := testConfig(t)
	chain := hive.NewClient("http://127.0.0.1:1", 0, nil)

	src, err := buildSource(cfg, chain)
	require.NoError(t, err)
	assert.IsType(t, &hive.BlockSource{}, src)

	cfg.Source.Type = config.SourceKafka
	cfg.Source.Kafka.Brokers = []string{"127.0.0.1:9092"}
	cfg.Source.Kafka.Topic = "hive-ops"
	src, err = buildSource(cfg, chain)
	require.NoError(t, err)
	assert.IsType(t, &source.KafkaSource{}, src)

	cfg.Source.Type = "rss"
	_, err = buildSource(cfg, chain)
	assert.Error(t, err)
}

func TestBuildSinksLogOnly(t *testing.T) {
	cfg := testConfig(t)
	sinks, cleanup, err := buildSinks(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()
	require.Len(t, sinks, 1)
	assert.Equal(t, "log", sinks[0].Name())
}
