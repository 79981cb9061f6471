package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. GIFTBOT_ACCOUNT_NAME.
const EnvPrefix = "GIFTBOT"

// ConfigPath returns the config file location: $GIFTBOT_CONFIG when set,
// else ~/.giftbot/config.json.
func ConfigPath() (string, error) {
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return ExpandHome(p), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".giftbot", "config.json"), nil
}

// Load reads the default config file.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile builds the configuration from defaults, the file at path (if it
// exists), and GIFTBOT_* environment overrides, then validates it. Files
// ending in .yaml or .yml are parsed as YAML, anything else as JSON.
// ${VAR} references inside the file are expanded first.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, []byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
		// Defaults plus environment only.
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse YAML config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse JSON config: %w", err)
		}
	}
	return nil
}

// Save writes cfg to the default config path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(cfg, path)
}

// SaveFile writes cfg to path in the format its extension selects.
func SaveFile(cfg *Config, path string) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// EnsureDir creates dir (after ~ expansion) if it does not exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(ExpandHome(dir), 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func (c *Config) expandPaths() {
	c.State.Dir = ExpandHome(c.State.Dir)
	c.State.GiftDB = ExpandHome(c.State.GiftDB)
	c.State.CursorPath = ExpandHome(c.State.CursorPath)
	c.Notify.WhatsApp.SessionDB = ExpandHome(c.Notify.WhatsApp.SessionDB)
	c.Notify.WhatsApp.QRPath = ExpandHome(c.Notify.WhatsApp.QRPath)
	c.Templates.Dir = ExpandHome(c.Templates.Dir)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks required settings. A config that fails here must stop the
// process before the engine starts.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Notify.Discord.Enabled && c.Notify.Discord.WebhookURL == "" {
		return errors.New("invalid config: notify.discord.webhookUrl is required when discord is enabled")
	}
	if c.Source.Type == SourceKafka && (len(c.Source.Kafka.Brokers) == 0 || c.Source.Kafka.Topic == "") {
		return errors.New("invalid config: source.kafka.brokers and source.kafka.topic are required for a kafka source")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: dispatch.timezone: %w", err)
	}
	return nil
}

// Location returns the timezone used to bucket gifts into days.
func (c *Config) Location() (*time.Location, error) {
	if c.Dispatch.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Dispatch.Timezone)
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
