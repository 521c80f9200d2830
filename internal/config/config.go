package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkin-runner/internal/models"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultHost             = "ikuuu.one"
	DefaultPushPlusEndpoint = "https://www.pushplus.plus/send"
)

type Config struct {
	Checkin  CheckinConfig  `mapstructure:"checkin"`
	PushPlus PushPlusConfig `mapstructure:"pushplus"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	App      AppConfig      `mapstructure:"app"`
}

type CheckinConfig struct {
	Host    string `mapstructure:"host"`
	BaseURL string `mapstructure:"base_url"` // overrides https://{host} when set
	// AccountsRaw is the JSON array as supplied; the runner parses it so a
	// malformed value is reported as a failed batch instead of a startup error.
	AccountsRaw string `mapstructure:"-"`
}

type PushPlusConfig struct {
	Endpoint   string   `mapstructure:"endpoint"`
	Tokens     []string `mapstructure:"-"`
	MaxRetries int      `mapstructure:"max_retries"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
	Endpoint string `mapstructure:"endpoint"`
}

type AppConfig struct {
	DataDir        string  `mapstructure:"data_dir"`
	LogDir         string  `mapstructure:"log_dir"`
	RequestTimeout int     `mapstructure:"request_timeout"` // seconds
	RateLimit      float64 `mapstructure:"rate_limit"`      // requests per second
	Debug          bool    `mapstructure:"debug"`
}

// URL returns the scheme and host every check-in endpoint hangs off.
func (c *CheckinConfig) URL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return "https://" + c.Host
}

func (a *AppConfig) Timeout() time.Duration {
	return time.Duration(a.RequestTimeout) * time.Second
}

// ConfigError means the run cannot start: nothing is sent over the network.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error: %s: %v", e.Reason, e.Err)
	}
	return "config error: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }

// RegisterFlags declares the command line overrides. Flag names match the
// viper keys so BindPFlags needs no mapping.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a config file (default ./config.yaml)")

	fs.String("checkin.host", DefaultHost, "Check-in service host (env: HOST)")
	fs.String("checkin.base_url", "", "Full base URL, overrides host (env: BASE_URL)")
	fs.String("checkin.accounts", "", "JSON array of accounts (env: ACCOUNTS)")

	fs.String("pushplus.tokens", "", "Comma-separated PushPlus tokens for the batch report (env: PUSHPLUS_TOKEN)")
	fs.String("pushplus.endpoint", DefaultPushPlusEndpoint, "PushPlus relay endpoint (env: PUSHPLUS_ENDPOINT)")
	fs.Int("pushplus.max_retries", 0, "Retries for PushPlus 429/5xx responses (env: PUSHPLUS_MAX_RETRIES)")

	fs.String("telegram.bot_token", "", "Telegram bot token for the batch report (env: TELEGRAM_BOT_TOKEN)")
	fs.Int64("telegram.chat_id", 0, "Telegram chat id (env: TELEGRAM_CHAT_ID)")

	fs.String("app.data_dir", "data_out", "Directory for the last run snapshot (env: DATA_DIR)")
	fs.String("app.log_dir", "logs", "Directory for checkin.log, empty disables file logging (env: LOG_DIR)")
	fs.Int("app.request_timeout", 30, "HTTP request timeout in seconds (env: REQUEST_TIMEOUT)")
	fs.Float64("app.rate_limit", 5, "Requests per second against the check-in service (env: RATE_LIMIT)")
	fs.Bool("app.debug", false, "Write debug lines to the log file (env: DEBUG)")
}

// Load layers configuration the usual way:
// 1. defaults
// 2. config.yaml (or --config)
// 3. .env file
// 4. environment
// 5. flags that were set explicitly
func Load(flags *pflag.FlagSet) (*Config, error) {
	godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &ConfigError{Reason: "failed to read " + path, Err: err}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, &ConfigError{Reason: "failed to read config.yaml", Err: err}
			}
		}
	}

	v.AutomaticEnv()
	setupEnvAliases(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Reason: "failed to decode configuration", Err: err}
	}

	raw, err := accountsValue(v.Get("checkin.accounts"))
	if err != nil {
		return nil, err
	}
	cfg.Checkin.AccountsRaw = raw
	cfg.PushPlus.Tokens = SplitTokens(v.Get("pushplus.tokens"))

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setupEnvAliases(v *viper.Viper) {
	v.BindEnv("checkin.host", "HOST")
	v.BindEnv("checkin.base_url", "BASE_URL")
	v.BindEnv("checkin.accounts", "ACCOUNTS")

	v.BindEnv("pushplus.tokens", "PUSHPLUS_TOKEN")
	v.BindEnv("pushplus.endpoint", "PUSHPLUS_ENDPOINT")
	v.BindEnv("pushplus.max_retries", "PUSHPLUS_MAX_RETRIES")

	v.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("telegram.chat_id", "TELEGRAM_CHAT_ID")
	v.BindEnv("telegram.endpoint", "TELEGRAM_ENDPOINT")

	v.BindEnv("app.data_dir", "DATA_DIR")
	v.BindEnv("app.log_dir", "LOG_DIR")
	v.BindEnv("app.request_timeout", "REQUEST_TIMEOUT")
	v.BindEnv("app.rate_limit", "RATE_LIMIT")
	v.BindEnv("app.debug", "DEBUG")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("checkin.host", DefaultHost)
	v.SetDefault("checkin.base_url", "")
	v.SetDefault("checkin.accounts", "")

	v.SetDefault("pushplus.tokens", "")
	v.SetDefault("pushplus.endpoint", DefaultPushPlusEndpoint)
	v.SetDefault("pushplus.max_retries", 0)

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("telegram.endpoint", "")

	v.SetDefault("app.data_dir", "data_out")
	v.SetDefault("app.log_dir", "logs")
	v.SetDefault("app.request_timeout", 30)
	v.SetDefault("app.rate_limit", 5.0)
	v.SetDefault("app.debug", false)
}

// accountsValue accepts the JSON string form (env, flag) as well as a YAML
// list from config.yaml, which is re-encoded as JSON.
func accountsValue(raw interface{}) (string, error) {
	switch val := raw.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(val), nil
	case []interface{}, []map[string]interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return "", &ConfigError{Reason: "accounts list in config file is not serialisable", Err: err}
		}
		return string(b), nil
	default:
		return "", &ConfigError{Reason: fmt.Sprintf("unsupported accounts value of type %T", raw)}
	}
}

// SplitTokens turns "a, b,,c" or a YAML list into trimmed, non-empty tokens.
func SplitTokens(raw interface{}) []string {
	var parts []string
	switch val := raw.(type) {
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []interface{}:
		for _, item := range val {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
	}

	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// ParseAccounts decodes the ACCOUNTS JSON array. Every entry needs an email
// and a password; a missing name falls back to the email.
func ParseAccounts(raw string) ([]models.Account, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &ConfigError{Reason: "ACCOUNTS is not set"}
	}

	var accounts []models.Account
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		return nil, &ConfigError{Reason: "ACCOUNTS is not a valid JSON array", Err: err}
	}
	if len(accounts) == 0 {
		return nil, &ConfigError{Reason: "ACCOUNTS is empty"}
	}

	for i := range accounts {
		a := &accounts[i]
		a.Email = strings.TrimSpace(a.Email)
		a.Name = strings.TrimSpace(a.Name)
		if a.Email == "" || a.Passwd == "" {
			return nil, &ConfigError{Reason: fmt.Sprintf("account #%d is missing email or passwd", i+1)}
		}
		if a.Name == "" {
			a.Name = a.Email
		}
	}
	return accounts, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Checkin.Host == "" && cfg.Checkin.BaseURL == "" {
		return &ConfigError{Reason: "checkin.host or checkin.base_url is required"}
	}
	if cfg.App.RequestTimeout <= 0 {
		return &ConfigError{Reason: "app.request_timeout must be positive"}
	}
	if cfg.App.RateLimit <= 0 {
		return &ConfigError{Reason: "app.rate_limit must be positive"}
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID == 0 {
		return &ConfigError{Reason: "telegram.chat_id is required when telegram.bot_token is set"}
	}
	return nil
}
