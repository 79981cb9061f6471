// Package config provides configuration types and loading for giftbot.
package config

// Config is the root configuration struct. It is loaded once at startup and
// treated as read-only afterwards.
type Config struct {
	Account     AccountConfig     `json:"account" yaml:"account"`
	Hive        HiveConfig        `json:"hive" yaml:"hive"`
	Engine      EngineConfig      `json:"engine" yaml:"engine"`
	Commands    CommandsConfig    `json:"commands" yaml:"commands"`
	VoteWatcher VoteWatcherConfig `json:"voteWatcher" yaml:"voteWatcher"`
	Tiers       []TierConfig      `json:"tiers" yaml:"tiers" ignored:"true" validate:"required,min=1,dive"`
	Features    FeaturesConfig    `json:"features" yaml:"features"`
	Notify      NotifyConfig      `json:"notify" yaml:"notify"`
	Source      SourceConfig      `json:"source" yaml:"source"`
	State       StateConfig       `json:"state" yaml:"state"`
	Dispatch    DispatchConfig    `json:"dispatch" yaml:"dispatch"`
	Templates   TemplatesConfig   `json:"templates" yaml:"templates"`
}

// ---------------------------------------------------------------------------
// Account – the bot's own chain identity
// ---------------------------------------------------------------------------

// AccountConfig names the account that replies and sends gifts.
type AccountConfig struct {
	Name string `json:"name" yaml:"name" envconfig:"NAME" validate:"required"`
}

// ---------------------------------------------------------------------------
// Hive – chain and sidechain endpoints
// ---------------------------------------------------------------------------

// HiveConfig holds the endpoints the bot talks to. Keys never live here: the
// broadcaster signs on the bot's behalf.
type HiveConfig struct {
	APINode          string `json:"apiNode" yaml:"apiNode" envconfig:"API_NODE" validate:"required,url"`
	EngineRPC        string `json:"engineRpc" yaml:"engineRpc" envconfig:"ENGINE_RPC" validate:"required,url"`
	BroadcasterURL   string `json:"broadcasterUrl" yaml:"broadcasterUrl" envconfig:"BROADCASTER_URL" validate:"required,url"`
	BroadcasterToken string `json:"broadcasterToken,omitempty" yaml:"broadcasterToken,omitempty" envconfig:"BROADCASTER_TOKEN"`
	TimeoutMs        int    `json:"timeoutMs" yaml:"timeoutMs" envconfig:"TIMEOUT_MS" validate:"gte=0"`
}

// ---------------------------------------------------------------------------
// Engine – the gifted token
// ---------------------------------------------------------------------------

// EngineConfig describes the reward token and who may always gift it.
type EngineConfig struct {
	TokenName    string   `json:"tokenName" yaml:"tokenName" envconfig:"TOKEN_NAME" validate:"required"`
	GiftAmount   float64  `json:"giftAmount" yaml:"giftAmount" envconfig:"GIFT_AMOUNT" validate:"gt=0"`
	TransferMemo string   `json:"transferMemo" yaml:"transferMemo" envconfig:"TRANSFER_MEMO"`
	AllowList    []string `json:"allowList" yaml:"allowList" envconfig:"ALLOW_LIST"`
}

// ---------------------------------------------------------------------------
// Commands – invocation tokens
// ---------------------------------------------------------------------------

// CommandsConfig holds the invocation token in both supported languages.
type CommandsConfig struct {
	English string `json:"english" yaml:"english" envconfig:"ENGLISH" validate:"required"`
	Spanish string `json:"spanish" yaml:"spanish" envconfig:"SPANISH"`
}

// VoteWatcherConfig turns upvotes from one curation account into gifts.
type VoteWatcherConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled" envconfig:"ENABLED"`
	FollowAccount string `json:"followAccount" yaml:"followAccount" envconfig:"FOLLOW_ACCOUNT" validate:"required_if=Enabled true"`
}

// TierConfig is one eligibility bracket. Tiers are listed lowest first.
type TierConfig struct {
	Name          string  `json:"name" yaml:"name" validate:"required"`
	MinBalance    float64 `json:"minBalance" yaml:"minBalance" validate:"gte=0"`
	MinStake      float64 `json:"minStake" yaml:"minStake" validate:"gte=0"`
	MaxDailyGifts int     `json:"maxDailyGifts" yaml:"maxDailyGifts" validate:"gte=0"`
}

// FeaturesConfig toggles side effects, mostly for dry runs.
type FeaturesConfig struct {
	Comments      bool `json:"comments" yaml:"comments" envconfig:"COMMENTS"`
	Transfers     bool `json:"transfers" yaml:"transfers" envconfig:"TRANSFERS"`
	Notifications bool `json:"notifications" yaml:"notifications" envconfig:"NOTIFICATIONS"`
}

// ---------------------------------------------------------------------------
// Notify – operational message sinks
// ---------------------------------------------------------------------------

// NotifyConfig selects the notification sinks.
type NotifyConfig struct {
	Identity      string         `json:"identity,omitempty" yaml:"identity,omitempty" envconfig:"IDENTITY"`
	QueueSize     int            `json:"queueSize" yaml:"queueSize" envconfig:"QUEUE_SIZE" validate:"gte=0"`
	SendTimeoutMs int            `json:"sendTimeoutMs" yaml:"sendTimeoutMs" envconfig:"SEND_TIMEOUT_MS" validate:"gte=0"`
	Log           bool           `json:"log" yaml:"log" envconfig:"LOG"`
	Discord       DiscordConfig  `json:"discord" yaml:"discord"`
	WhatsApp      WhatsAppConfig `json:"whatsapp" yaml:"whatsapp"`
	Kafka         KafkaConfig    `json:"kafka" yaml:"kafka"`
}

// DiscordConfig configures the Discord webhook sink.
type DiscordConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled" envconfig:"ENABLED"`
	WebhookURL string `json:"webhookUrl" yaml:"webhookUrl" envconfig:"WEBHOOK_URL" validate:"omitempty,url"`
}

// WhatsAppConfig configures the WhatsApp sink.
type WhatsAppConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled" envconfig:"ENABLED"`
	SessionDB  string   `json:"sessionDb" yaml:"sessionDb" envconfig:"SESSION_DB"`
	QRPath     string   `json:"qrPath" yaml:"qrPath" envconfig:"QR_PATH"`
	Recipients []string `json:"recipients" yaml:"recipients" envconfig:"RECIPIENTS" validate:"required_if=Enabled true"`
}

// KafkaConfig names a topic on a Kafka cluster.
type KafkaConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled" envconfig:"ENABLED"`
	Brokers   []string `json:"brokers" yaml:"brokers" envconfig:"BROKERS" validate:"required_if=Enabled true"`
	Topic     string   `json:"topic" yaml:"topic" envconfig:"TOPIC" validate:"required_if=Enabled true"`
	Partition int      `json:"partition" yaml:"partition" envconfig:"PARTITION" validate:"gte=0"`
}

// ---------------------------------------------------------------------------
// Source – where events come from
// ---------------------------------------------------------------------------

const (
	SourceHive  = "hive"
	SourceKafka = "kafka"
)

// SourceConfig selects and tunes the event source.
type SourceConfig struct {
	Type           string      `json:"type" yaml:"type" envconfig:"TYPE" validate:"oneof=hive kafka"`
	StartBlock     uint32      `json:"startBlock" yaml:"startBlock" envconfig:"START_BLOCK"`
	PollIntervalMs int         `json:"pollIntervalMs" yaml:"pollIntervalMs" envconfig:"POLL_INTERVAL_MS" validate:"gte=0"`
	Prefetch       int         `json:"prefetch" yaml:"prefetch" envconfig:"PREFETCH" validate:"gte=0"`
	Kafka          KafkaConfig `json:"kafka" yaml:"kafka"`
}

// ---------------------------------------------------------------------------
// State – local persistence
// ---------------------------------------------------------------------------

const (
	CursorFile   = "file"
	CursorSQLite = "sqlite"
)

// StateConfig locates the gift ledger and the cursor. They never share a file.
type StateConfig struct {
	Dir         string `json:"dir" yaml:"dir" envconfig:"DIR" validate:"required"`
	GiftDB      string `json:"giftDb" yaml:"giftDb" envconfig:"GIFT_DB" validate:"required"`
	CursorStore string `json:"cursorStore" yaml:"cursorStore" envconfig:"CURSOR_STORE" validate:"oneof=file sqlite"`
	CursorPath  string `json:"cursorPath" yaml:"cursorPath" envconfig:"CURSOR_PATH" validate:"required,nefield=GiftDB"`
}

// ---------------------------------------------------------------------------
// Dispatch – engine pacing
// ---------------------------------------------------------------------------

// DispatchConfig paces replies and retries.
type DispatchConfig struct {
	ReplyCooldownMs   int    `json:"replyCooldownMs" yaml:"replyCooldownMs" envconfig:"REPLY_COOLDOWN_MS" validate:"gte=0"`
	RetryBackoffMs    int    `json:"retryBackoffMs" yaml:"retryBackoffMs" envconfig:"RETRY_BACKOFF_MS" validate:"gt=0"`
	MaxRetryBackoffMs int    `json:"maxRetryBackoffMs" yaml:"maxRetryBackoffMs" envconfig:"MAX_RETRY_BACKOFF_MS" validate:"gtefield=RetryBackoffMs"`
	Timezone          string `json:"timezone" yaml:"timezone" envconfig:"TIMEZONE"`
}

// TemplatesConfig points at optional reply template overrides.
type TemplatesConfig struct {
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty" envconfig:"DIR"`
}

// DefaultConfig returns a Config with sensible defaults. The account name is
// left empty and must be set before the bot can run.
func DefaultConfig() *Config {
	return &Config{
		Hive: HiveConfig{
			APINode:        "https://api.hive.blog",
			EngineRPC:      "https://api.hive-engine.com/rpc/contracts",
			BroadcasterURL: "http://127.0.0.1:8091/rpc",
			TimeoutMs:      30000,
		},
		Engine: EngineConfig{
			TokenName:    "PIZZA",
			GiftAmount:   1,
			TransferMemo: "Enjoy your gift!",
		},
		Commands: CommandsConfig{
			English: "!PIZZA",
			Spanish: "!PIZZA-ES",
		},
		Tiers: []TierConfig{
			{Name: "tier1", MinBalance: 5, MinStake: 0, MaxDailyGifts: 1},
			{Name: "tier2", MinBalance: 20, MinStake: 10, MaxDailyGifts: 5},
		},
		Features: FeaturesConfig{
			Comments:      true,
			Transfers:     true,
			Notifications: true,
		},
		Notify: NotifyConfig{
			QueueSize:     64,
			SendTimeoutMs: 10000,
			Log:           true,
			WhatsApp: WhatsAppConfig{
				SessionDB: "~/.giftbot/whatsapp.db",
				QRPath:    "~/.giftbot/whatsapp-qr.png",
			},
		},
		Source: SourceConfig{
			Type:           SourceHive,
			PollIntervalMs: 3000,
			Prefetch:       64,
		},
		State: StateConfig{
			Dir:         "~/.giftbot",
			GiftDB:      "~/.giftbot/gifts.db",
			CursorStore: CursorFile,
			CursorPath:  "~/.giftbot/lastblock.txt",
		},
		Dispatch: DispatchConfig{
			ReplyCooldownMs:   3000,
			RetryBackoffMs:    1000,
			MaxRetryBackoffMs: 60000,
			Timezone:          "UTC",
		},
	}
}
