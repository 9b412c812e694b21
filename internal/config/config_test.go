package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/question-bank/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, int64(1024), cfg.Anthropic.MaxTokens)
	assert.Equal(t, 10, cfg.Queue.BatchSize)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.InDelta(t, 0.7, cfg.Queue.ConfidenceThreshold, 0.001)
	assert.Equal(t, 30, cfg.Queue.StaleAfterMins)
	assert.Zero(t, cfg.Inference.SharedRPS)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
}

func TestLoadWorkflowDefaultsAreStaggered(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	want := map[model.TaskKind][2]time.Duration{
		model.KindAnswerExtraction:      {30 * time.Second, 5 * time.Minute},
		model.KindSubjectClassification: {60 * time.Second, 10 * time.Minute},
		model.KindStatementFormatting:   {90 * time.Second, 7 * time.Minute},
		model.KindCommentaryFormatting:  {120 * time.Second, 7 * time.Minute},
		model.KindFullReview:            {150 * time.Second, 10 * time.Minute},
	}
	seen := make(map[time.Duration]bool)
	for kind, d := range want {
		w := cfg.Workflow(kind)
		assert.True(t, w.Enabled, kind)
		assert.Equal(t, d[0], w.InitialDelay(), kind)
		assert.Equal(t, d[1], w.Interval(), kind)
		assert.Positive(t, w.ItemDelay(), kind)
		assert.False(t, seen[w.InitialDelay()], "initial delays must differ")
		seen[w.InitialDelay()] = true
	}
	assert.InDelta(t, 0.5, cfg.Workflow(model.KindStatementFormatting).MinRetention, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: file:qbank.db
log:
  level: debug
  format: console
queue:
  batch_size: 25
workflows:
  subject_classification:
    labels: [Português, Matemática]
  full_review:
    enabled: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 25, cfg.Queue.BatchSize)
	assert.Equal(t, []string{"Português", "Matemática"}, cfg.Workflow(model.KindSubjectClassification).Labels)
	assert.False(t, cfg.Workflow(model.KindFullReview).Enabled)
	// Defaults still apply for unset values
	assert.Equal(t, 600, cfg.Workflow(model.KindSubjectClassification).IntervalSecs)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("QBANK_STORE_DRIVER", "postgres")
	t.Setenv("QBANK_LOG_LEVEL", "warn")
	t.Setenv("QBANK_WORKFLOWS_ANSWER_EXTRACTION_INTERVAL_SECS", "120")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 2*time.Minute, cfg.Workflow(model.KindAnswerExtraction).Interval())
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func loadedDefaults(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	cfg.Store.DatabaseURL = "postgres://localhost/qbank"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := loadedDefaults(t)
	assert.NoError(t, cfg.Validate(ModeStore))

	err := cfg.Validate(ModeEnrich)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Anthropic.Key = "sk-ant-test"
	assert.NoError(t, cfg.Validate(ModeEnrich))
}

func TestValidate_DatabaseURLRequiredUnlessMemory(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate(ModeStore)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url fails required_unless")

	cfg.Store.Driver = "memory"
	assert.NoError(t, cfg.Validate(ModeStore))
}

func TestValidate_FieldBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver fails oneof"},
		{"batch size", func(c *Config) { c.Queue.BatchSize = 0 }, "queue.batch_size fails gte"},
		{"threshold", func(c *Config) { c.Queue.ConfidenceThreshold = 1.5 }, "queue.confidence_threshold fails lte"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port fails gte"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format fails oneof"},
		{"webhook", func(c *Config) { c.Monitoring.WebhookURL = "not a url" }, "monitoring.webhook_url fails url"},
		{"min conns", func(c *Config) { c.Store.MinConns = 20 }, "store.min_conns fails ltefield"},
		{"interval", func(c *Config) {
			w := c.Workflows["full_review"]
			w.IntervalSecs = 0
			c.Workflows["full_review"] = w
		}, "interval_secs fails gte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadedDefaults(t)
			tt.mutate(cfg)
			err := cfg.Validate(ModeStore)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_UnknownWorkflowAndMode(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Workflows["translation"] = WorkflowConfig{IntervalSecs: 60}

	err := cfg.Validate(ModeStore)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflows.translation")

	delete(cfg.Workflows, "translation")
	err = cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
