package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	AmoCRM   AmoCRMConfig   `yaml:"amocrm" mapstructure:"amocrm"`
	Telegram TelegramConfig `yaml:"telegram" mapstructure:"telegram"`
	Intake   IntakeConfig   `yaml:"intake" mapstructure:"intake"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`

	// File is the config file Load read, empty when none was found.
	File string `yaml:"-" mapstructure:"-"`
}

// AmoCRMConfig holds amoCRM credentials and taxonomy hints.
type AmoCRMConfig struct {
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	Subdomain     string  `yaml:"subdomain" mapstructure:"subdomain"`
	AccessToken   string  `yaml:"access_token" mapstructure:"access_token"`
	PipelineID    string  `yaml:"pipeline_id" mapstructure:"pipeline_id"`
	PipelineName  string  `yaml:"pipeline_name" mapstructure:"pipeline_name"`
	StatusID      string  `yaml:"status_id" mapstructure:"status_id"`
	StatusName    string  `yaml:"status_name" mapstructure:"status_name"`
	DefaultDomain string  `yaml:"default_domain" mapstructure:"default_domain"`
	CacheTTLSecs  int     `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// Configured reports whether a CRM host and an access token are both set.
func (c AmoCRMConfig) Configured() bool {
	host := strings.TrimSpace(c.BaseURL)
	if host == "" {
		host = strings.TrimSpace(c.Subdomain)
	}
	return host != "" && strings.TrimSpace(c.AccessToken) != ""
}

// NumericIDs returns the configured pipeline and status ids. A blank or
// non-numeric value yields 0, which means "resolve by name".
func (c AmoCRMConfig) NumericIDs() (pipelineID, statusID int64) {
	return parseID(c.PipelineID), parseID(c.StatusID)
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// CacheTTL returns the taxonomy cache lifetime.
func (c AmoCRMConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSecs) * time.Second
}

// Timeout returns the per-request HTTP timeout for CRM calls.
func (c AmoCRMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// TelegramConfig holds the notification bot settings.
type TelegramConfig struct {
	BotToken    string `yaml:"bot_token" mapstructure:"bot_token"`
	ChatID      string `yaml:"chat_id" mapstructure:"chat_id"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	SiteURL     string `yaml:"site_url" mapstructure:"site_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Configured reports whether both the bot token and the target chat are set.
func (c TelegramConfig) Configured() bool {
	return strings.TrimSpace(c.BotToken) != "" && strings.TrimSpace(c.ChatID) != ""
}

// Timeout returns how long a single notification may take.
func (c TelegramConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// IntakeConfig configures submission handling.
type IntakeConfig struct {
	PhoneRegion    string   `yaml:"phone_region" mapstructure:"phone_region"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	// QuizLabelsPath overrides the built-in quiz step titles.
	QuizLabelsPath string   `yaml:"quiz_labels_path" mapstructure:"quiz_labels_path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int `yaml:"port" mapstructure:"port"`
	ShutdownTimeout int `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// legacyEnv maps config keys to the env names the landing page has always used.
var legacyEnv = map[string]string{
	"amocrm.base_url":      "AMOCRM_BASE_URL",
	"amocrm.subdomain":     "AMOCRM_SUBDOMAIN",
	"amocrm.access_token":  "AMOCRM_ACCESS_TOKEN",
	"amocrm.pipeline_id":   "AMOCRM_PIPELINE_ID",
	"amocrm.pipeline_name": "AMOCRM_PIPELINE_NAME",
	"amocrm.status_id":     "AMOCRM_STATUS_ID",
	"amocrm.status_name":   "AMOCRM_STATUS_NAME",
	"telegram.bot_token":   "TELEGRAM_BOT_TOKEN",
	"telegram.chat_id":     "TELEGRAM_CHAT_ID",
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// .env is optional; real env vars always win over it.
	if err := godotenv.Load(); err != nil {
		zap.L().Debug("config: no .env file loaded", zap.Error(err))
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := "LEADS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", env)
		}
	}

	// Defaults
	v.SetDefault("amocrm.pipeline_name", "Administrators")
	v.SetDefault("amocrm.status_name", "Incoming")
	v.SetDefault("amocrm.default_domain", "amocrm.ru")
	v.SetDefault("amocrm.cache_ttl_secs", 300)
	v.SetDefault("amocrm.timeout_secs", 15)
	v.SetDefault("amocrm.rate_limit", 7)
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.site_url", "https://promo.metrika.ae/arab")
	v.SetDefault("telegram.timeout_secs", 10)
	v.SetDefault("intake.phone_region", "AE")
	v.SetDefault("intake.allowed_origins", []string{"*"})
	v.SetDefault("intake.max_body_bytes", 64<<10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout_secs", 15)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.trim()
	cfg.File = v.ConfigFileUsed()

	return &cfg, nil
}

func (c *Config) trim() {
	c.AmoCRM.BaseURL = strings.TrimSpace(c.AmoCRM.BaseURL)
	c.AmoCRM.Subdomain = strings.TrimSpace(c.AmoCRM.Subdomain)
	c.AmoCRM.AccessToken = strings.TrimSpace(c.AmoCRM.AccessToken)
	c.AmoCRM.PipelineID = strings.TrimSpace(c.AmoCRM.PipelineID)
	c.AmoCRM.PipelineName = strings.TrimSpace(c.AmoCRM.PipelineName)
	c.AmoCRM.StatusID = strings.TrimSpace(c.AmoCRM.StatusID)
	c.AmoCRM.StatusName = strings.TrimSpace(c.AmoCRM.StatusName)
	c.Telegram.BotToken = strings.TrimSpace(c.Telegram.BotToken)
	c.Telegram.ChatID = strings.TrimSpace(c.Telegram.ChatID)
}

// Validate checks the settings a command needs before it starts.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
		}
	case "crm":
		if !c.AmoCRM.Configured() {
			errs = append(errs, "amocrm.base_url (or amocrm.subdomain) and amocrm.access_token are required")
		}
	}

	if c.AmoCRM.CacheTTLSecs < 0 {
		errs = append(errs, "amocrm.cache_ttl_secs must not be negative")
	}
	if c.AmoCRM.RateLimit < 0 {
		errs = append(errs, "amocrm.rate_limit must not be negative")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// serviceName is attached to every log entry.
const serviceName = "lead-intake"

// InitLogger initializes the global zap logger. Every entry carries the
// service name so shared log sinks can tell the landing backends apart.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)
	zapCfg.InitialFields = map[string]any{"service": serviceName}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
