package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Pipedrive PipedriveConfig `yaml:"pipedrive" mapstructure:"pipedrive"`
	Typeform  TypeformConfig  `yaml:"typeform" mapstructure:"typeform"`
	SMTP      SMTPConfig      `yaml:"smtp" mapstructure:"smtp"`
	IMAP      IMAPConfig      `yaml:"imap" mapstructure:"imap"`
	Review    ReviewConfig    `yaml:"review" mapstructure:"review"`
	Nurture   NurtureConfig   `yaml:"nurture" mapstructure:"nurture"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	Model         string `yaml:"model" mapstructure:"model"`
	MaxTokens     int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	PromptVersion string `yaml:"prompt_version" mapstructure:"prompt_version"`
}

// PipedriveConfig holds Pipedrive API settings and the pipeline layout
// used for deal creation and reuse.
type PipedriveConfig struct {
	Token            string            `yaml:"token" mapstructure:"token"`
	BaseURL          string            `yaml:"base_url" mapstructure:"base_url"`
	PipelineID       int               `yaml:"pipeline_id" mapstructure:"pipeline_id"`
	IntakeStageID    int               `yaml:"intake_stage_id" mapstructure:"intake_stage_id"`
	ReportSentStage  int               `yaml:"report_sent_stage_id" mapstructure:"report_sent_stage_id"`
	DealValue        float64           `yaml:"deal_value" mapstructure:"deal_value"`
	Currency         string            `yaml:"currency" mapstructure:"currency"`
	RateLimit        float64           `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs      int               `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int               `yaml:"max_attempts" mapstructure:"max_attempts"`
	Fields           PipedriveFieldMap `yaml:"fields" mapstructure:"fields"`
	PlaceholderNames []string          `yaml:"placeholder_names" mapstructure:"placeholder_names"`
}

// PipedriveFieldMap names the deal custom field keys that carry nurture state.
type PipedriveFieldMap struct {
	NurtureStep   string `yaml:"nurture_step" mapstructure:"nurture_step"`
	NurtureStart  string `yaml:"nurture_start" mapstructure:"nurture_start"`
	NurtureStatus string `yaml:"nurture_status" mapstructure:"nurture_status"`
}

// TypeformConfig holds the Typeform token used for authenticated file
// downloads and the known form layouts keyed by form id.
type TypeformConfig struct {
	Token string                       `yaml:"token" mapstructure:"token"`
	Forms map[string]map[string]string `yaml:"forms" mapstructure:"forms"`
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host        string `yaml:"host" mapstructure:"host"`
	Port        int    `yaml:"port" mapstructure:"port"`
	Username    string `yaml:"username" mapstructure:"username"`
	Password    string `yaml:"password" mapstructure:"password"`
	FromName    string `yaml:"from_name" mapstructure:"from_name"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// IMAPConfig holds inbox settings used to detect replies to nurture mail.
// Username and password fall back to the SMTP credentials.
type IMAPConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// ReviewConfig configures the manual-review gate.
type ReviewConfig struct {
	Manual           bool   `yaml:"manual" mapstructure:"manual"`
	ChatWebhookURL   string `yaml:"chat_webhook_url" mapstructure:"chat_webhook_url"`
	ApprovalSecret   string `yaml:"approval_secret" mapstructure:"approval_secret"`
	ApprovalTTLHours int    `yaml:"approval_ttl_hours" mapstructure:"approval_ttl_hours"`
	PublicBaseURL    string `yaml:"public_base_url" mapstructure:"public_base_url"`
}

// NurtureConfig configures the follow-up email sequence.
type NurtureConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	IntervalMins  int    `yaml:"interval_mins" mapstructure:"interval_mins"`
	SendDelaySecs int    `yaml:"send_delay_secs" mapstructure:"send_delay_secs"`
	LockPath      string `yaml:"lock_path" mapstructure:"lock_path"`
	SequencePath  string `yaml:"sequence_path" mapstructure:"sequence_path"`
	CheckReplies  bool   `yaml:"check_replies" mapstructure:"check_replies"`
}

// ExtractConfig configures attachment download and text extraction.
type ExtractConfig struct {
	PDFProvider   string `yaml:"pdf_provider" mapstructure:"pdf_provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBytes      int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
}

// PipelineConfig configures submission processing.
type PipelineConfig struct {
	MinTextLength int `yaml:"min_text_length" mapstructure:"min_text_length"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	DebugRoutes bool     `yaml:"debug_routes" mapstructure:"debug_routes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// legacyEnv maps config keys to the environment names used by earlier
// deployments. KT_-prefixed names are still honoured first.
var legacyEnv = map[string][]string{
	"anthropic.key":             {"ANTHROPIC_API_KEY"},
	"pipedrive.token":           {"PIPEDRIVE_API_TOKEN"},
	"pipedrive.pipeline_id":     {"PIPEDRIVE_PIPELINE_ID"},
	"pipedrive.intake_stage_id": {"PIPEDRIVE_STAGE_ID"},
	"typeform.token":            {"TYPEFORM_API_TOKEN"},
	"smtp.username":             {"GMAIL_USER"},
	"smtp.password":             {"GMAIL_APP_PASSWORD"},
	"review.manual":             {"MANUAL_REVIEW"},
	"review.chat_webhook_url":   {"SLACK_WEBHOOK_URL"},
	"server.port":               {"PORT"},
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("KT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envs := append([]string{"KT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug_routes", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "kandidatentekort.db")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8000)
	v.SetDefault("anthropic.timeout_secs", 90)
	v.SetDefault("anthropic.prompt_version", "panel")
	v.SetDefault("pipedrive.base_url", "https://api.pipedrive.com/v1")
	v.SetDefault("pipedrive.pipeline_id", 4)
	v.SetDefault("pipedrive.intake_stage_id", 21)
	v.SetDefault("pipedrive.deal_value", 15000)
	v.SetDefault("pipedrive.currency", "EUR")
	v.SetDefault("pipedrive.rate_limit", 8)
	v.SetDefault("pipedrive.timeout_secs", 30)
	v.SetDefault("pipedrive.max_attempts", 2)
	v.SetDefault("pipedrive.placeholder_names", []string{"onbekend", "unknown", "n.v.t.", "nvt", "-", "geen"})
	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 465)
	v.SetDefault("smtp.username", "wouter@recruitin.nl")
	v.SetDefault("smtp.from_name", "Wouter Arts | Kandidatentekort")
	v.SetDefault("smtp.timeout_secs", 30)
	v.SetDefault("imap.addr", "imap.gmail.com:993")
	v.SetDefault("pipedrive.fields.nurture_step", "")
	v.SetDefault("pipedrive.fields.nurture_start", "")
	v.SetDefault("pipedrive.fields.nurture_status", "")
	v.SetDefault("imap.username", "")
	v.SetDefault("imap.password", "")
	v.SetDefault("review.manual", true)
	v.SetDefault("review.approval_secret", "")
	v.SetDefault("review.public_base_url", "")
	v.SetDefault("review.approval_ttl_hours", 168)
	v.SetDefault("nurture.enabled", true)
	v.SetDefault("nurture.interval_mins", 60)
	v.SetDefault("nurture.send_delay_secs", 2)
	v.SetDefault("nurture.lock_path", "/tmp/kandidatentekort-nurture.lock")
	v.SetDefault("nurture.sequence_path", "")
	v.SetDefault("nurture.check_replies", false)
	v.SetDefault("extract.pdf_provider", "native")
	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("extract.timeout_secs", 30)
	v.SetDefault("extract.max_bytes", 20<<20)
	v.SetDefault("pipeline.min_text_length", 50)

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

	if cfg.IMAP.Username == "" {
		cfg.IMAP.Username = cfg.SMTP.Username
	}
	if cfg.IMAP.Password == "" {
		cfg.IMAP.Password = cfg.SMTP.Password
	}

	return &cfg, nil
}

// Validate checks the configuration for the given command mode.
// Supported modes: "serve", "nurture", "analyze", "pending".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres")
	}
	if c.Pipedrive.Token != "" {
		if c.Pipedrive.PipelineID <= 0 {
			errs = append(errs, "pipedrive.pipeline_id must be > 0")
		}
		if c.Pipedrive.IntakeStageID <= 0 {
			errs = append(errs, "pipedrive.intake_stage_id must be > 0")
		}
	}
	switch c.Anthropic.PromptVersion {
	case "classic", "panel":
	default:
		errs = append(errs, fmt.Sprintf("anthropic.prompt_version %q is not supported", c.Anthropic.PromptVersion))
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Nurture.Enabled && c.Nurture.IntervalMins <= 0 {
			errs = append(errs, "nurture.interval_mins must be > 0")
		}
	case "nurture":
		if c.Pipedrive.Token == "" {
			errs = append(errs, "pipedrive.token is required")
		}
		if c.SMTP.Password == "" {
			errs = append(errs, "smtp.password is required")
		}
	case "analyze":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "pending":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Integrations reports which optional integrations are configured.
func (c *Config) Integrations() map[string]bool {
	return map[string]bool{
		"email":    c.SMTP.Username != "" && c.SMTP.Password != "",
		"crm":      c.Pipedrive.Token != "",
		"llm":      c.Anthropic.Key != "",
		"chat":     c.Review.ChatWebhookURL != "",
		"typeform": c.Typeform.Token != "",
	}
}

// InitLogger initializes the global zap logger.
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

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
