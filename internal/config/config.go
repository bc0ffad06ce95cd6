package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"ProductScout/internal/fetch"
	"ProductScout/pkg/logger"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "PRODUCT_SCOUT_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	openAIAPIKeyEnv   = "OPENAI_API_KEY"
	openAIModelEnv    = "OPENAI_MODEL"
	ollamaHostEnv     = "OLLAMA_HOST"
	productCountEnv   = "PRODUCT_COUNT"
	sessionLabelEnv   = "SESSION_LABEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"

	// MaxBatchSize bounds the candidates sent in one scoring call.
	MaxBatchSize = 40
)

var bootLog = logger.New("config")

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Categories    []CategoryConfig   `yaml:"categories"`
	Sources       []SourceConfig     `yaml:"sources"`
	Fetch         FetchConfig        `yaml:"fetch"`
	Ranker        RankerConfig       `yaml:"ranker"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	Ollama        OllamaConfig       `yaml:"ollama"`
	ML            MLConfig           `yaml:"ml"`
	Digest        DigestConfig       `yaml:"digest"`
	Storage       StorageConfig      `yaml:"storage"`
	Notifications NotificationConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CategoryConfig maps a category to its ordered query terms.
type CategoryConfig struct {
	Name  string   `yaml:"name"`
	Terms []string `yaml:"terms"`
}

// SourceConfig enables a marketplace and tunes its parser.
type SourceConfig struct {
	Name     string `yaml:"name"`
	BaseURL  string `yaml:"baseUrl"`
	MaxItems int    `yaml:"maxItems"`
	Disabled bool   `yaml:"disabled"`
}

// FetchConfig governs pacing, retries and the run deadline.
type FetchConfig struct {
	MinDelay         time.Duration   `yaml:"minDelay"`
	MaxDelay         time.Duration   `yaml:"maxDelay"`
	Timeout          time.Duration   `yaml:"timeout"`
	MaxRetries       int             `yaml:"maxRetries"`
	BaseBackoff      time.Duration   `yaml:"baseBackoff"`
	MaxBackoff       time.Duration   `yaml:"maxBackoff"`
	Concurrency      int             `yaml:"concurrency"`
	RunDeadline      time.Duration   `yaml:"runDeadline"`
	TermsPerCategory int             `yaml:"termsPerCategory"`
	Profiles         []fetch.Profile `yaml:"profiles"`
	BlockSignatures  []string        `yaml:"blockSignatures"`
}

// RankerConfig picks the scoring backend.
type RankerConfig struct {
	Provider  string `yaml:"provider"`
	BatchSize int    `yaml:"batchSize"`
}

// ChatGPTConfig defines how to contact an OpenAI-compatible API.
type ChatGPTConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Temperature  float64       `yaml:"temperature"`
	Timeout      time.Duration `yaml:"timeout"`
}

// OllamaConfig points at a local Ollama server.
type OllamaConfig struct {
	Host    string        `yaml:"host"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// MLConfig describes a generic HTTP scoring service.
type MLConfig struct {
	InferenceURL string `yaml:"inferenceUrl"`
	APIKey       string `yaml:"apiKey"`
}

// DigestConfig sizes the digest. SessionLabel (e.g. "Morning") is shown in
// the message header when several runs go out per day.
type DigestConfig struct {
	TopN         int    `yaml:"topN"`
	SessionLabel string `yaml:"sessionLabel"`
}

// StorageConfig selects the ResultStore backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Dir    string `yaml:"dir"`
	DSN    string `yaml:"dsn"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	Endpoint string `yaml:"endpoint"`
}

// SchedulerConfig defines when the daemon triggers a run.
type SchedulerConfig struct {
	DailyAt  string         `yaml:"dailyAt"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// Clock parses DailyAt ("HH:MM").
func (s SchedulerConfig) Clock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s.DailyAt))
	if err != nil {
		return 0, 0, fmt.Errorf("scheduler.dailyAt %q: %w", s.DailyAt, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			bootLog.Printf("cannot read %s: %v (falling back to defaults)", path, err)
		} else if fileCfg, err := Parse(raw); err != nil {
			bootLog.Printf("cannot parse %s: %v (falling back to defaults)", path, err)
		} else {
			cfg = fileCfg
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	return cfg
}

// Parse decodes raw YAML over the defaults.
func Parse(raw []byte) (Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	cfg.fillGaps()
	return cfg, nil
}

// Validate reports settings the pipeline cannot run with.
func (c Config) Validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("config: no categories configured")
	}
	for _, cat := range c.Categories {
		if strings.TrimSpace(cat.Name) == "" || len(cat.Terms) == 0 {
			return fmt.Errorf("config: category %q needs a name and at least one term", cat.Name)
		}
	}
	if c.Digest.TopN <= 0 {
		return fmt.Errorf("config: digest.topN must be positive, got %d", c.Digest.TopN)
	}
	if c.Fetch.MaxDelay < c.Fetch.MinDelay {
		return fmt.Errorf("config: fetch.maxDelay %v below minDelay %v", c.Fetch.MaxDelay, c.Fetch.MinDelay)
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("config: fetch.concurrency must be positive")
	}
	if c.Ranker.BatchSize <= 0 || c.Ranker.BatchSize > MaxBatchSize {
		return fmt.Errorf("config: ranker.batchSize must be within 1..%d", MaxBatchSize)
	}
	switch c.Ranker.Provider {
	case "chatgpt", "ollama", "http", "heuristic":
	default:
		return fmt.Errorf("config: unknown ranker.provider %q", c.Ranker.Provider)
	}
	switch c.Storage.Driver {
	case "json", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if _, _, err := c.Scheduler.Clock(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.DSN = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}

	if v := os.Getenv(openAIModelEnv); v != "" {
		c.ChatGPT.Model = v
	}

	if v := os.Getenv(ollamaHostEnv); v != "" {
		c.Ollama.Host = v
	}

	if v := os.Getenv(sessionLabelEnv); v != "" {
		c.Digest.SessionLabel = v
	}

	if v := os.Getenv(productCountEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Digest.TopN = n
		} else {
			bootLog.Printf("ignoring %s=%q: not a positive integer", productCountEnv, v)
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		bootLog.Printf("unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

// fillGaps restores defaults for lists a file may have emptied.
func (c *Config) fillGaps() {
	defaults := defaultConfig()
	if len(c.Sources) == 0 {
		c.Sources = defaults.Sources
	}
	if len(c.Fetch.Profiles) == 0 {
		c.Fetch.Profiles = defaults.Fetch.Profiles
	}
	if len(c.Fetch.BlockSignatures) == 0 {
		c.Fetch.BlockSignatures = defaults.Fetch.BlockSignatures
	}
	if c.Ranker.BatchSize > MaxBatchSize {
		bootLog.Printf("ranker.batchSize %d above %d, clamping", c.Ranker.BatchSize, MaxBatchSize)
		c.Ranker.BatchSize = MaxBatchSize
	}
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Categories: []CategoryConfig{
			{Name: "lamps", Terms: []string{"led lamp", "desk lamp", "night light", "smart lamp", "table lamp", "moon lamp"}},
			{Name: "telescopes", Terms: []string{"telescope", "astronomical telescope", "monocular telescope", "spotting scope"}},
			{Name: "binoculars", Terms: []string{"binoculars", "night vision binoculars", "compact binoculars", "hunting binoculars"}},
			{Name: "kids_toys", Terms: []string{"kids toys", "educational toys", "rc car toy", "building blocks", "plush toy trending"}},
			{Name: "electronics", Terms: []string{"wireless earbuds", "smart watch", "phone accessories", "portable charger", "led strip"}},
		},
		Sources: []SourceConfig{
			{Name: "alibaba", MaxItems: 8},
			{Name: "dhgate", MaxItems: 5},
		},
		Fetch: FetchConfig{
			MinDelay:         500 * time.Millisecond,
			MaxDelay:         1500 * time.Millisecond,
			Timeout:          20 * time.Second,
			MaxRetries:       3,
			BaseBackoff:      2 * time.Second,
			MaxBackoff:       30 * time.Second,
			Concurrency:      3,
			RunDeadline:      10 * time.Minute,
			TermsPerCategory: 2,
			Profiles:         fetch.DefaultProfiles,
		},
		Ranker: RankerConfig{Provider: "chatgpt", BatchSize: MaxBatchSize},
		ChatGPT: ChatGPTConfig{
			Endpoint:    "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			Timeout:     60 * time.Second,
		},
		Ollama:  OllamaConfig{Host: "http://127.0.0.1:11434", Model: "llama3.1", Timeout: 2 * time.Minute},
		ML:      MLConfig{InferenceURL: "http://127.0.0.1:8080"},
		Digest:  DigestConfig{TopN: 10},
		Storage: StorageConfig{Driver: "json", Dir: "output"},
		Scheduler: SchedulerConfig{
			DailyAt:  "06:00",
			Timezone: defaultTimezone,
			location: tz,
		},
	}
}
