package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/question-bank/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig               `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig           `yaml:"anthropic" mapstructure:"anthropic"`
	Inference  InferenceConfig           `yaml:"inference" mapstructure:"inference"`
	Queue      QueueConfig               `yaml:"queue" mapstructure:"queue"`
	Workflows  map[string]WorkflowConfig `yaml:"workflows" mapstructure:"workflows" validate:"dive"`
	Fetch      FetchConfig               `yaml:"fetch" mapstructure:"fetch"`
	Server     ServerConfig              `yaml:"server" mapstructure:"server"`
	Log        LogConfig                 `yaml:"log" mapstructure:"log"`
	Monitoring MonitoringConfig          `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=postgres sqlite memory"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url" validate:"required_unless=Driver memory"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns" validate:"gte=0,ltefield=MaxConns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model" validate:"required"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=1"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
}

// InferenceConfig tunes calls to the model.
type InferenceConfig struct {
	// SharedRPS caps requests per second across all workflows. Zero
	// leaves only the per-workflow item delay.
	SharedRPS        float64 `yaml:"shared_rps" mapstructure:"shared_rps" validate:"gte=0"`
	RetryAttempts    int     `yaml:"retry_attempts" mapstructure:"retry_attempts" validate:"gte=1"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms" validate:"gte=0"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms" validate:"gte=0"`
}

// QueueConfig holds the task queue parameters shared by every workflow.
type QueueConfig struct {
	BatchSize           int     `yaml:"batch_size" mapstructure:"batch_size" validate:"gte=1,lte=500"`
	MaxAttempts         int     `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold" validate:"gt=0,lte=1"`
	StaleAfterMins      int     `yaml:"stale_after_mins" mapstructure:"stale_after_mins" validate:"gte=0"`
}

// WorkflowConfig schedules one enrichment workflow.
type WorkflowConfig struct {
	Enabled          bool     `yaml:"enabled" mapstructure:"enabled"`
	InitialDelaySecs int      `yaml:"initial_delay_secs" mapstructure:"initial_delay_secs" validate:"gte=0"`
	IntervalSecs     int      `yaml:"interval_secs" mapstructure:"interval_secs" validate:"gte=1"`
	ItemDelayMs      int      `yaml:"item_delay_ms" mapstructure:"item_delay_ms" validate:"gte=0"`
	Populate         bool     `yaml:"populate" mapstructure:"populate"`
	PopulateLimit    int      `yaml:"populate_limit" mapstructure:"populate_limit" validate:"gte=0"`
	Labels           []string `yaml:"labels" mapstructure:"labels"`
	MinRetention     float64  `yaml:"min_retention" mapstructure:"min_retention" validate:"gte=0,lte=1"`
}

// InitialDelay returns the delay before the first cycle.
func (w WorkflowConfig) InitialDelay() time.Duration {
	return time.Duration(w.InitialDelaySecs) * time.Second
}

// Interval returns the time between cycles.
func (w WorkflowConfig) Interval() time.Duration {
	return time.Duration(w.IntervalSecs) * time.Second
}

// ItemDelay returns the pause between items within a batch.
func (w WorkflowConfig) ItemDelay() time.Duration {
	return time.Duration(w.ItemDelayMs) * time.Millisecond
}

// Workflow returns the settings for kind. Unknown kinds get a disabled
// zero value.
func (c *Config) Workflow(kind model.TaskKind) WorkflowConfig {
	return c.Workflows[string(kind)]
}

// FetchConfig configures raw-record downloads.
type FetchConfig struct {
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=1"`
	RPS         float64 `yaml:"rps" mapstructure:"rps" validate:"gt=0"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port" validate:"gte=1,lte=65535"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// MonitoringConfig configures failed-task alerting.
type MonitoringConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url" validate:"omitempty,url"`
	// FailedThreshold alerts when a workflow's failed tasks reach this
	// count. Zero disables the check.
	FailedThreshold int `yaml:"failed_threshold" mapstructure:"failed_threshold" validate:"gte=0"`
	// FailureRateThreshold alerts when failed/(done+failed) exceeds it.
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold" validate:"gte=0,lte=1"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs" validate:"gte=0"`
}

// workflowDefaults staggers the workflows so they do not hit the model
// provider at the same moment.
var workflowDefaults = map[model.TaskKind]WorkflowConfig{
	model.KindAnswerExtraction:      {Enabled: true, InitialDelaySecs: 30, IntervalSecs: 300, ItemDelayMs: 1000, Populate: true, PopulateLimit: 500},
	model.KindSubjectClassification: {Enabled: true, InitialDelaySecs: 60, IntervalSecs: 600, ItemDelayMs: 1000, Populate: true, PopulateLimit: 500},
	model.KindStatementFormatting:   {Enabled: true, InitialDelaySecs: 90, IntervalSecs: 420, ItemDelayMs: 1500, Populate: true, PopulateLimit: 500, MinRetention: 0.5},
	model.KindCommentaryFormatting:  {Enabled: true, InitialDelaySecs: 120, IntervalSecs: 420, ItemDelayMs: 1500, Populate: true, PopulateLimit: 500, MinRetention: 0.5},
	model.KindFullReview:            {Enabled: true, InitialDelaySecs: 150, IntervalSecs: 600, ItemDelayMs: 2000, Populate: true, PopulateLimit: 200},
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("QBANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("inference.shared_rps", 0)
	v.SetDefault("inference.retry_attempts", 3)
	v.SetDefault("inference.initial_backoff_ms", 500)
	v.SetDefault("inference.max_backoff_ms", 30000)
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.confidence_threshold", 0.7)
	v.SetDefault("queue.stale_after_mins", 30)
	for kind, w := range workflowDefaults {
		prefix := "workflows." + string(kind) + "."
		v.SetDefault(prefix+"enabled", w.Enabled)
		v.SetDefault(prefix+"initial_delay_secs", w.InitialDelaySecs)
		v.SetDefault(prefix+"interval_secs", w.IntervalSecs)
		v.SetDefault(prefix+"item_delay_ms", w.ItemDelayMs)
		v.SetDefault(prefix+"populate", w.Populate)
		v.SetDefault(prefix+"populate_limit", w.PopulateLimit)
		v.SetDefault(prefix+"min_retention", w.MinRetention)
	}
	v.SetDefault("fetch.user_agent", "qbank/1.0")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rps", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.failed_threshold", 25)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.check_interval_secs", 300)

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

	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validation modes name what a command needs from the configuration.
const (
	// ModeStore covers commands that only touch the store.
	ModeStore = "store"
	// ModeEnrich covers commands that call the model.
	ModeEnrich = "enrich"
)

// Validate checks field constraints, that every workflow key names a known
// task kind and the settings mode requires.
func (c *Config) Validate(mode string) error {
	for name := range c.Workflows {
		if _, err := model.ParseTaskKind(name); err != nil {
			return eris.Wrapf(err, "config: workflows.%s", name)
		}
	}

	var problems []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s fails %s", fieldPath(fe), fe.Tag()))
		}
	}

	switch mode {
	case ModeStore:
	case ModeEnrich:
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// fieldPath turns "Config.Queue.BatchSize" into "queue.batch_size".
func fieldPath(fe validator.FieldError) string {
	ns := strings.TrimPrefix(fe.StructNamespace(), "Config.")
	parts := strings.Split(ns, ".")
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 && !unicode.IsUpper(rune(s[i-1])) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
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
