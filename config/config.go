package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pevans/dailybrief/logger"
	"github.com/pevans/dailybrief/sources"
	"github.com/spf13/viper"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "dailybrief.yaml"

// Validation errors
var (
	ErrNoAccounts      = errors.New("at least one account is required")
	ErrInvalidAccount  = errors.New("invalid account")
	ErrInvalidViewport = errors.New("viewport width, height and scale must be positive")
	ErrInvalidLogLevel = errors.New("invalid log level")
	ErrInvalidTimezone = errors.New("invalid timezone")
	ErrInvalidStorage  = errors.New("storage data_dir and image_dir are required")
	ErrInvalidSearch   = errors.New("search count must be positive and begin non-negative")
)

// Config is the full runtime configuration. It is loaded once and passed
// down by pointer; nothing mutates it after Load returns.
type Config struct {
	Timezone string            `mapstructure:"timezone" yaml:"timezone"`
	Accounts []sources.Account `mapstructure:"accounts" yaml:"accounts"`
	Search   SearchConfig      `mapstructure:"search" yaml:"search"`
	WeChat   WeChatConfig      `mapstructure:"wechat" yaml:"wechat"`
	Extract  ExtractConfig     `mapstructure:"extract" yaml:"extract"`
	Storage  StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Render   RenderConfig      `mapstructure:"render" yaml:"render"`
	Logging  LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

// SearchConfig controls source queries.
type SearchConfig struct {
	Begin     int           `mapstructure:"begin" yaml:"begin"`
	Count     int           `mapstructure:"count" yaml:"count"`
	MaxJitter time.Duration `mapstructure:"max_jitter" yaml:"max_jitter"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// WeChatConfig holds the official-account backend settings. Token and Cookie
// come from WECHAT_TOKEN and WECHAT_COOKIE and are never written to disk.
type WeChatConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Token    string `mapstructure:"token" yaml:"-"`
	Cookie   string `mapstructure:"cookie" yaml:"-"`
}

// ExtractConfig controls both extraction strategies. APIKey comes from
// GEMINI_API_KEY.
type ExtractConfig struct {
	Model             string        `mapstructure:"model" yaml:"model"`
	PrimaryEndpoint   string        `mapstructure:"primary_endpoint" yaml:"primary_endpoint"`
	SecondaryEndpoint string        `mapstructure:"secondary_endpoint" yaml:"secondary_endpoint"`
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	SafeClient        bool          `mapstructure:"safe_client" yaml:"safe_client"`
}

// StorageConfig locates the stored artifacts.
type StorageConfig struct {
	DataDir  string `mapstructure:"data_dir" yaml:"data_dir"`
	ImageDir string `mapstructure:"image_dir" yaml:"image_dir"`
	ImageURL string `mapstructure:"image_url" yaml:"image_url"` // {date} is replaced
}

// RenderConfig controls the headless browser.
type RenderConfig struct {
	ChromePath  string        `mapstructure:"chrome_path" yaml:"chrome_path,omitempty"`
	Width       int64         `mapstructure:"width" yaml:"width"`
	Height      int64         `mapstructure:"height" yaml:"height"`
	DeviceScale float64       `mapstructure:"device_scale" yaml:"device_scale"`
	Headless    bool          `mapstructure:"headless" yaml:"headless"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// MetricsConfig controls the optional metrics textfile.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Timezone: "Asia/Shanghai",
		Accounts: []sources.Account{
			{Name: "每天100秒读懂世界", SourceID: "Mzg3NTQ0MjQwNg==", WeChatID: "TT100s-News", Kind: sources.KindWeChat},
			{Name: "每天60秒读懂世界", SourceID: "MzkwNDc5NTA0Mw==", WeChatID: "mt36501", Kind: sources.KindWeChat},
			{Name: "每天3分钟读懂世界", SourceID: "MzkwNjY1ODIxNw==", WeChatID: "hao36501", Kind: sources.KindWeChat},
		},
		Search: SearchConfig{
			Begin:     0,
			Count:     4,
			MaxJitter: 5 * time.Second,
			UserAgent: sources.DefaultUserAgent,
			Timeout:   10 * time.Second,
		},
		WeChat: WeChatConfig{
			Endpoint: sources.DefaultWeChatEndpoint,
		},
		Extract: ExtractConfig{
			Model:             "gemini-2.5-flash",
			PrimaryEndpoint:   "https://google-ai.deno.dev/v1beta/models/{model}:generateContent",
			SecondaryEndpoint: "https://generativelanguage.googleapis.com/v1beta/models/{model}:generateContent",
			Timeout:           2 * time.Minute,
			FetchTimeout:      15 * time.Second,
			MaxBodyBytes:      8 << 20,
			SafeClient:        true,
		},
		Storage: StorageConfig{
			DataDir:  "static/60s",
			ImageDir: "static/images",
			ImageURL: "https://cdn.jsdmirror.com/gh/vikiboss/60s-static-host@main/static/images/{date}.png",
		},
		Render: RenderConfig{
			Width:       2000,
			Height:      1200,
			DeviceScale: 1.6,
			Headless:    true,
			Timeout:     time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from defaults, the YAML file at path (or
// dailybrief.yaml in the working directory), and DAILYBRIEF_* environment
// variables, in increasing precedence. Credentials are read from their
// conventional variables. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultPath, filepath.Ext(DefaultPath)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("DAILYBRIEF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials keep the names they have always had
	_ = v.BindEnv("wechat.token", "WECHAT_TOKEN", "DAILYBRIEF_WECHAT_TOKEN")
	_ = v.BindEnv("wechat.cookie", "WECHAT_COOKIE", "DAILYBRIEF_WECHAT_COOKIE")
	_ = v.BindEnv("extract.api_key", "GEMINI_API_KEY", "DAILYBRIEF_EXTRACT_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("timezone", d.Timezone)

	accounts := make([]map[string]any, 0, len(d.Accounts))
	for _, a := range d.Accounts {
		accounts = append(accounts, map[string]any{
			"name":      a.Name,
			"keyword":   a.Keyword,
			"source_id": a.SourceID,
			"wechat_id": a.WeChatID,
			"kind":      a.Kind,
			"feed_url":  a.FeedURL,
		})
	}
	v.SetDefault("accounts", accounts)

	v.SetDefault("search.begin", d.Search.Begin)
	v.SetDefault("search.count", d.Search.Count)
	v.SetDefault("search.max_jitter", d.Search.MaxJitter)
	v.SetDefault("search.user_agent", d.Search.UserAgent)
	v.SetDefault("search.timeout", d.Search.Timeout)

	v.SetDefault("wechat.endpoint", d.WeChat.Endpoint)
	v.SetDefault("wechat.token", "")
	v.SetDefault("wechat.cookie", "")

	v.SetDefault("extract.model", d.Extract.Model)
	v.SetDefault("extract.primary_endpoint", d.Extract.PrimaryEndpoint)
	v.SetDefault("extract.secondary_endpoint", d.Extract.SecondaryEndpoint)
	v.SetDefault("extract.api_key", "")
	v.SetDefault("extract.timeout", d.Extract.Timeout)
	v.SetDefault("extract.fetch_timeout", d.Extract.FetchTimeout)
	v.SetDefault("extract.max_body_bytes", d.Extract.MaxBodyBytes)
	v.SetDefault("extract.safe_client", d.Extract.SafeClient)

	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.image_dir", d.Storage.ImageDir)
	v.SetDefault("storage.image_url", d.Storage.ImageURL)

	v.SetDefault("render.chrome_path", d.Render.ChromePath)
	v.SetDefault("render.width", d.Render.Width)
	v.SetDefault("render.height", d.Render.Height)
	v.SetDefault("render.device_scale", d.Render.DeviceScale)
	v.SetDefault("render.headless", d.Render.Headless)
	v.SetDefault("render.timeout", d.Render.Timeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
}

// Validate checks the configuration for values that would make a run fail.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return ErrNoAccounts
	}
	for _, a := range c.Accounts {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
		}
	}

	if c.Search.Count <= 0 || c.Search.Begin < 0 {
		return ErrInvalidSearch
	}

	if c.Storage.DataDir == "" || c.Storage.ImageDir == "" {
		return ErrInvalidStorage
	}

	if c.Render.Width <= 0 || c.Render.Height <= 0 || c.Render.DeviceScale <= 0 {
		return ErrInvalidViewport
	}

	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLogLevel, err)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTimezone, err)
	}

	return nil
}

// Location returns the configured timezone. Validate has already checked it
// loads, so failure falls back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ImageURL returns the public image URL for date, or "" when no template is
// configured.
func (c *Config) ImageURL(date string) string {
	if c.Storage.ImageURL == "" {
		return ""
	}
	return strings.ReplaceAll(c.Storage.ImageURL, "{date}", date)
}

// EndpointURL expands {model} in an extraction endpoint template.
func (c *Config) EndpointURL(tmpl string) string {
	return strings.ReplaceAll(tmpl, "{model}", c.Extract.Model)
}
