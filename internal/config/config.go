// Package config loads resultalert.toml and the environment into one Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shanehull/resultalert/internal/analysis"
	"github.com/shanehull/resultalert/internal/dedup"
	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/extract"
	"github.com/shanehull/resultalert/internal/logging"
	"github.com/shanehull/resultalert/internal/notify"
	"github.com/shanehull/resultalert/internal/pipeline"
	"github.com/shanehull/resultalert/internal/source"
)

const (
	ConfigName = "resultalert"
	EnvPrefix  = "RESULTALERT"
)

type Config struct {
	Log        logging.LogConfig   `mapstructure:"log"`
	Redis      RedisConfig         `mapstructure:"redis"`
	Sources    []source.Config     `mapstructure:"sources"`
	Poller     source.PollerConfig `mapstructure:"poller"`
	Filter     source.FilterConfig `mapstructure:"filter"`
	Dedup      DedupConfig         `mapstructure:"dedup"`
	Extraction ExtractionConfig    `mapstructure:"extraction"`
	Analysis   analysis.Config     `mapstructure:"analysis"`
	Pipeline   pipeline.Config     `mapstructure:"pipeline"`
	Estimates  EstimatesConfig     `mapstructure:"estimates"`
	Store      StoreConfig         `mapstructure:"store"`
	Notify     NotifyConfig        `mapstructure:"notify"`
}

type RedisConfig struct {
	// URL is a redis:// URL. Empty disables every redis-backed component.
	URL string `mapstructure:"url"`
}

type DedupConfig struct {
	// Backend is memory, file, badger or redis.
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	// Path is the snapshot file (file) or directory (badger).
	Path string `mapstructure:"path"`
}

type ExtractionConfig struct {
	Threshold float64                  `mapstructure:"threshold"`
	PDFToText bool                     `mapstructure:"pdftotext"`
	Download  extract.DownloaderConfig `mapstructure:"download"`
	Gemini    GeminiConfig             `mapstructure:"gemini"`
}

type GeminiConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

type EstimatesConfig struct {
	File string        `mapstructure:"file"`
	TTL  time.Duration `mapstructure:"ttl"`
	// Reload is a cron spec for re-seeding File; empty disables it.
	Reload string `mapstructure:"reload"`
}

type StoreConfig struct {
	// Path of the SQLite database; empty disables persistence.
	Path string `mapstructure:"path"`
}

type NotifyConfig struct {
	Console  bool                  `mapstructure:"console"`
	Email    notify.EmailConfig    `mapstructure:"email"`
	Telegram notify.TelegramConfig `mapstructure:"telegram"`
}

// DefaultConfigDir is $HOME/.config/resultalert.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", ConfigName)
	}
	return filepath.Join(home, ".config", ConfigName)
}

func setDefaults(v *viper.Viper) {
	lc := logging.DefaultLogConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.console", lc.Console)
	v.SetDefault("log.file", lc.File)
	v.SetDefault("log.file_path", lc.FilePath)
	v.SetDefault("log.max_size", lc.MaxSize)
	v.SetDefault("log.max_backups", lc.MaxBackups)
	v.SetDefault("log.max_age", lc.MaxAge)

	v.SetDefault("redis.url", "")

	v.SetDefault("sources", []map[string]any{
		{"name": "nse", "kind": source.KindNSE, "url": source.DefaultNSEURL, "enabled": true},
		{"name": "bse", "kind": source.KindBSE, "url": source.DefaultBSEURL, "enabled": true},
	})

	pc := source.DefaultPollerConfig()
	v.SetDefault("poller.interval", pc.Interval)
	v.SetDefault("poller.timeout", pc.Timeout)
	v.SetDefault("poller.max_backoff", pc.MaxBackoff)
	v.SetDefault("poller.name_lookup_url", pc.NameLookupURL)

	v.SetDefault("filter.watchlist", []string{})
	v.SetDefault("filter.types", source.DefaultFilterConfig().Types)

	v.SetDefault("dedup.backend", "memory")
	v.SetDefault("dedup.ttl", dedup.DefaultTTL)
	v.SetDefault("dedup.path", filepath.Join("data", "dedup"))

	dc := extract.DefaultDownloaderConfig()
	v.SetDefault("extraction.threshold", extract.DefaultAcceptThreshold)
	v.SetDefault("extraction.pdftotext", true)
	v.SetDefault("extraction.download.download_timeout", dc.Timeout)
	v.SetDefault("extraction.download.max_retries", dc.MaxRetries)
	v.SetDefault("extraction.download.retry_backoff", dc.RetryBackoff)
	v.SetDefault("extraction.download.rate_per_second", dc.RatePerSecond)
	v.SetDefault("extraction.gemini.enabled", false)
	v.SetDefault("extraction.gemini.api_key", "")
	v.SetDefault("extraction.gemini.model", "")

	ac := analysis.DefaultConfig()
	v.SetDefault("analysis.bands.strong_positive", ac.Bands.StrongPositive)
	v.SetDefault("analysis.bands.positive", ac.Bands.Positive)
	v.SetDefault("analysis.bands.neutral", ac.Bands.Neutral)
	v.SetDefault("analysis.bands.negative", ac.Bands.Negative)
	v.SetDefault("analysis.weights.profit", ac.Weights.Profit)
	v.SetDefault("analysis.weights.revenue", ac.Weights.Revenue)
	v.SetDefault("analysis.weights.eps", ac.Weights.EPS)
	v.SetDefault("analysis.strong_growth", ac.StrongGrowth)
	v.SetDefault("analysis.decline", ac.Decline)

	pl := pipeline.DefaultConfig()
	v.SetDefault("pipeline.workers", pl.Workers)
	v.SetDefault("pipeline.queue_size", pl.QueueSize)
	v.SetDefault("pipeline.queue_policy", pl.QueuePolicy)
	v.SetDefault("pipeline.enqueue_timeout", pl.EnqueueTimeout)
	v.SetDefault("pipeline.deadline", pl.Deadline)
	v.SetDefault("pipeline.timeout_policy", pl.TimeoutPolicy)
	v.SetDefault("pipeline.queue_backend", pl.QueueBackend)
	v.SetDefault("pipeline.queue_key", pl.QueueKey)

	v.SetDefault("estimates.file", "")
	v.SetDefault("estimates.ttl", 24*time.Hour)
	v.SetDefault("estimates.reload", "")

	v.SetDefault("store.path", filepath.Join("data", "resultalert.db"))

	v.SetDefault("notify.console", true)
	v.SetDefault("notify.email.enabled", false)
	v.SetDefault("notify.email.smtp_server", "smtp.gmail.com")
	v.SetDefault("notify.email.smtp_port", 587)
	v.SetDefault("notify.email.smtp_user", "")
	v.SetDefault("notify.email.smtp_pass", "")
	v.SetDefault("notify.email.from", "")
	v.SetDefault("notify.email.to", "")
	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.channel_id", "")
	v.SetDefault("notify.telegram.pin_strong", true)
	v.SetDefault("notify.telegram.failure_alerts", true)
}

// Load reads path (or resultalert.toml from . and DefaultConfigDir when path
// is empty), applies RESULTALERT_* environment overrides and validates. A
// missing config file is not an error; the defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultConfigDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps the conventional secret variables, which carry no
// prefix.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHANNEL_ID"); v != "" {
		cfg.Notify.Telegram.ChannelID = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		cfg.Notify.Email.SMTPPass = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Extraction.Gemini.APIKey = v
	}
	if cfg.Notify.Email.FromEmail == "" {
		cfg.Notify.Email.FromEmail = cfg.Notify.Email.SMTPUser
	}
}

// EnabledSources returns the sources switched on in the config.
func (c *Config) EnabledSources() []source.Config {
	var out []source.Config
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Validate rejects misconfiguration that should abort startup.
func (c *Config) Validate() error {
	var errs []error

	if len(c.EnabledSources()) == 0 {
		errs = append(errs, fmt.Errorf("%w: no sources enabled", rerrors.ErrConfigInvalid))
	}
	if c.Extraction.Threshold < 0 || c.Extraction.Threshold > 1 {
		errs = append(errs, fmt.Errorf("%w: extraction.threshold must be within [0,1], got %v", rerrors.ErrConfigInvalid, c.Extraction.Threshold))
	}
	if err := c.Analysis.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.Dedup.Backend {
	case "memory", "file", "badger":
	case "redis":
		if c.Redis.URL == "" {
			errs = append(errs, fmt.Errorf("%w: dedup.backend redis needs redis.url", rerrors.ErrConfigInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown dedup backend %q", rerrors.ErrConfigInvalid, c.Dedup.Backend))
	}
	if c.Pipeline.QueueBackend == "redis" && c.Redis.URL == "" {
		errs = append(errs, fmt.Errorf("%w: pipeline.queue_backend redis needs redis.url", rerrors.ErrConfigInvalid))
	}
	if c.Notify.Telegram.Enabled && (c.Notify.Telegram.BotToken == "" || c.Notify.Telegram.ChannelID == "") {
		errs = append(errs, fmt.Errorf("%w: telegram needs bot_token and channel_id", rerrors.ErrConfigInvalid))
	}
	if c.Extraction.Gemini.Enabled && c.Extraction.Gemini.APIKey == "" {
		errs = append(errs, fmt.Errorf("%w: gemini extraction needs an api key", rerrors.ErrConfigInvalid))
	}
	return errors.Join(errs...)
}
