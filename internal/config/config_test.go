package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Account.Name = "giftbot"
	return cfg
}

func TestDefaultConfigNeedsAccount(t *testing.T) {
	err := DefaultConfig().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Account.Name")

	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no tiers", func(c *Config) { c.Tiers = nil }},
		{"tier without name", func(c *Config) { c.Tiers[0].Name = "" }},
		{"zero amount", func(c *Config) { c.Engine.GiftAmount = 0 }},
		{"no token", func(c *Config) { c.Engine.TokenName = "" }},
		{"no command", func(c *Config) { c.Commands.English = "" }},
		{"vote watcher without account", func(c *Config) { c.VoteWatcher.Enabled = true }},
		{"discord without webhook", func(c *Config) { c.Notify.Discord.Enabled = true }},
		{"whatsapp without recipients", func(c *Config) { c.Notify.WhatsApp.Enabled = true }},
		{"kafka sink without brokers", func(c *Config) { c.Notify.Kafka.Enabled = true }},
		{"kafka source without topic", func(c *Config) { c.Source.Type = SourceKafka }},
		{"unknown source", func(c *Config) { c.Source.Type = "rss" }},
		{"unknown cursor store", func(c *Config) { c.State.CursorStore = "redis" }},
		{"cursor shares gift db", func(c *Config) { c.State.CursorPath = c.State.GiftDB }},
		{"backoff cap below base", func(c *Config) { c.Dispatch.MaxRetryBackoffMs = 10 }},
		{"bad timezone", func(c *Config) { c.Dispatch.Timezone = "Mars/Olympus" }},
		{"bad api node", func(c *Config) { c.Hive.APINode = "not a url" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFileJSONWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	t.Setenv("BOT_ACCOUNT", "pizzabot")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "account": {"name": "${BOT_ACCOUNT}"},
  "engine": {"tokenName": "PIZZA", "giftAmount": 0.5, "allowList": ["alice"]},
  "tiers": [{"name": "only", "minBalance": 1, "minStake": 0, "maxDailyGifts": 2}]
}`), 0600))

	t.Setenv("GIFTBOT_DISPATCH_REPLY_COOLDOWN_MS", "100")
	t.Setenv("GIFTBOT_FEATURES_TRANSFERS", "false")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pizzabot", cfg.Account.Name)
	assert.Equal(t, 0.5, cfg.Engine.GiftAmount)
	assert.Equal(t, []string{"alice"}, cfg.Engine.AllowList)
	require.Len(t, cfg.Tiers, 1)
	assert.Equal(t, 2, cfg.Tiers[0].MaxDailyGifts)
	assert.Equal(t, 100, cfg.Dispatch.ReplyCooldownMs)
	assert.False(t, cfg.Features.Transfers)
	assert.True(t, cfg.Features.Comments, "defaults survive")
	assert.False(t, strings.HasPrefix(cfg.State.GiftDB, "~"), "paths are expanded")
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
account:
  name: giftbot
voteWatcher:
  enabled: true
  followAccount: curator
`), 0600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.VoteWatcher.Enabled)
	assert.Equal(t, "curator", cfg.VoteWatcher.FollowAccount)
}

func TestLoadFileMissingUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("GIFTBOT_ACCOUNT_NAME", "envbot")
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "envbot", cfg.Account.Name)
}

func TestLoadFileInvalidFailsFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"account": {"name": ""}}`), 0600))
	_, err := LoadFile(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0600))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestSaveFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := validConfig()
	cfg.Engine.TokenName = "BEER"
	require.NoError(t, SaveFile(cfg, path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "BEER", loaded.Engine.TokenName)
	assert.Equal(t, "giftbot", loaded.Account.Name)
}
