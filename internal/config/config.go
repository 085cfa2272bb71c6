// Package config handles configuration loading for glassbox.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for a glassbox run.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Models    ModelsConfig    `mapstructure:"models"`
	Scout     ScoutConfig     `mapstructure:"scout"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Distill   DistillConfig   `mapstructure:"distill"`
	Plan      PlanConfig      `mapstructure:"plan"`
	Draft     DraftConfig     `mapstructure:"draft"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Invoker   InvokerConfig   `mapstructure:"invoker"`
	Render    RenderConfig    `mapstructure:"render"`
	Output    OutputConfig    `mapstructure:"output"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. Supports ${VAR} expansion.
	APIKey string `mapstructure:"api_key"`
	// UseAWSBedrock routes calls through AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the Bedrock region (e.g. "us-west-2").
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS shared-config profile.
	AWSProfile string `mapstructure:"aws_profile"`
}

// ModelsConfig selects the models used per call class.
type ModelsConfig struct {
	// Fast is the model for high-volume, low-stakes calls (survey, map).
	Fast string `mapstructure:"fast"`
	// Deep is the model for planning, reduction, drafting, and audits.
	Deep string `mapstructure:"deep"`
}

// ScoutConfig controls target discovery.
type ScoutConfig struct {
	// MaxFileBytes is the size above which a file is inventoried as noise.
	MaxFileBytes int64 `mapstructure:"max_file_bytes"`
	// SurveyChunk is how many paths go into one surveyor call.
	SurveyChunk int `mapstructure:"survey_chunk"`
}

// UploadConfig controls content staging.
type UploadConfig struct {
	// MaxFailures is how many unreadable files are tolerated before the
	// stage fails with a resource error.
	MaxFailures int `mapstructure:"max_failures"`
	// KeepStaged skips cleanup of staged content when the run completes.
	KeepStaged bool `mapstructure:"keep_staged"`
}

// DistillConfig controls the Map-Reduce distiller.
type DistillConfig struct {
	// SmallFileThreshold is the line count below which a file is kept
	// verbatim instead of summarized.
	SmallFileThreshold int `mapstructure:"small_file_threshold"`
	// BatchSize is how many files go into one Map batch.
	BatchSize int `mapstructure:"batch_size"`
	// Concurrency bounds how many Map batches are in flight at once.
	Concurrency int `mapstructure:"concurrency"`
}

// PlanConfig controls the diagram planner.
type PlanConfig struct {
	// OverlapThreshold is the scope Jaccard similarity at or above which
	// two proposals are grouped for dedup adjudication.
	OverlapThreshold float64 `mapstructure:"overlap_threshold"`
	// MaxPerPass caps how many proposals one planning pass may return.
	MaxPerPass int `mapstructure:"max_per_pass"`
}

// DraftConfig controls drafting and critique.
type DraftConfig struct {
	// MaxFixes is how many corrective redraft attempts a failing diagram
	// gets before it is kept as render-failed.
	MaxFixes int `mapstructure:"max_fixes"`
	// WarnLines is the source line count above which the critic warns.
	WarnLines int `mapstructure:"warn_lines"`
	// WarnDecls is the participant/class count above which the critic warns.
	WarnDecls int `mapstructure:"warn_decls"`
	// SkipRender validates syntax only, without calling the render service.
	SkipRender bool `mapstructure:"skip_render"`
}

// AuditConfig controls the duplicate auditor.
type AuditConfig struct {
	// OverlapThreshold is the scope Jaccard similarity that makes a pair
	// an audit candidate.
	OverlapThreshold float64 `mapstructure:"overlap_threshold"`
	// TitleThreshold is the title token-set similarity that makes a pair
	// an audit candidate.
	TitleThreshold float64 `mapstructure:"title_threshold"`
}

// InvokerConfig controls retry behavior for every LLM call.
type InvokerConfig struct {
	// MaxAttempts bounds schema-validation retries per call.
	MaxAttempts int `mapstructure:"max_attempts"`
	// TransportRetries bounds transport-level retries per attempt.
	TransportRetries int `mapstructure:"transport_retries"`
	// BackoffBase is the first transport backoff delay; it doubles per retry.
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	// Timeout applies per individual LLM call.
	Timeout time.Duration `mapstructure:"timeout"`
	// RequestsPerMinute throttles call starts; 0 disables the limiter.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	// MaxTokens is the response token cap per call.
	MaxTokens int `mapstructure:"max_tokens"`
}

// RenderConfig controls the diagram render boundary.
type RenderConfig struct {
	// Endpoint is the Kroki-compatible base URL.
	Endpoint string `mapstructure:"endpoint"`
	// Format is the rendered image format (png or svg).
	Format string `mapstructure:"format"`
	// Timeout applies per render request.
	Timeout time.Duration `mapstructure:"timeout"`
}

// OutputConfig controls where run artifacts land.
type OutputConfig struct {
	// Dir is the base output directory; each run writes under <dir>/<run-id>.
	Dir string `mapstructure:"dir"`
}

// Load loads configuration in layers.
// Precedence (highest to lowest):
// 1. Environment variables (GLASSBOX_*, ANTHROPIC_API_KEY)
// 2. Project config (.glassbox.yaml in current directory or a parent)
// 3. User config (~/.config/glassbox/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("GLASSBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("models.fast", "claude-3-5-haiku-20241022")
	v.SetDefault("models.deep", "claude-sonnet-4-20250514")

	v.SetDefault("scout.max_file_bytes", 512*1024)
	v.SetDefault("scout.survey_chunk", 120)

	v.SetDefault("upload.max_failures", 5)
	v.SetDefault("upload.keep_staged", false)

	v.SetDefault("distill.small_file_threshold", 50)
	v.SetDefault("distill.batch_size", 2)
	v.SetDefault("distill.concurrency", 3)

	v.SetDefault("plan.overlap_threshold", 0.5)
	v.SetDefault("plan.max_per_pass", 8)

	v.SetDefault("draft.max_fixes", 3)
	v.SetDefault("draft.warn_lines", 100)
	v.SetDefault("draft.warn_decls", 20)
	v.SetDefault("draft.skip_render", false)

	v.SetDefault("audit.overlap_threshold", 0.5)
	v.SetDefault("audit.title_threshold", 0.8)

	v.SetDefault("invoker.max_attempts", 3)
	v.SetDefault("invoker.transport_retries", 3)
	v.SetDefault("invoker.backoff_base", "5s")
	v.SetDefault("invoker.timeout", "120s")
	v.SetDefault("invoker.requests_per_minute", 0)
	v.SetDefault("invoker.max_tokens", 8192)

	v.SetDefault("render.endpoint", "https://kroki.io")
	v.SetDefault("render.format", "png")
	v.SetDefault("render.timeout", "30s")

	v.SetDefault("output.dir", "glassbox-out")
}

// Default returns a Config with built-in default values.
func Default() *Config {
	return &Config{
		Models: ModelsConfig{
			Fast: "claude-3-5-haiku-20241022",
			Deep: "claude-sonnet-4-20250514",
		},
		Scout:   ScoutConfig{MaxFileBytes: 512 * 1024, SurveyChunk: 120},
		Upload:  UploadConfig{MaxFailures: 5},
		Distill: DistillConfig{SmallFileThreshold: 50, BatchSize: 2, Concurrency: 3},
		Plan:    PlanConfig{OverlapThreshold: 0.5, MaxPerPass: 8},
		Draft:   DraftConfig{MaxFixes: 3, WarnLines: 100, WarnDecls: 20},
		Audit:   AuditConfig{OverlapThreshold: 0.5, TitleThreshold: 0.8},
		Invoker: InvokerConfig{
			MaxAttempts:      3,
			TransportRetries: 3,
			BackoffBase:      5 * time.Second,
			Timeout:          120 * time.Second,
			MaxTokens:        8192,
		},
		Render: RenderConfig{
			Endpoint: "https://kroki.io",
			Format:   "png",
			Timeout:  30 * time.Second,
		},
		Output: OutputConfig{Dir: "glassbox-out"},
	}
}

// getUserConfigDir returns the XDG config directory for glassbox.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "glassbox")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "glassbox")
	}
	return filepath.Join(home, ".config", "glassbox")
}

// findProjectConfig searches for .glassbox.yaml in the current directory
// and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".glassbox.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// ErrNoAPIKey is returned when no Anthropic API key is configured.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// GetAPIKey returns the Anthropic API key, checking the environment first
// and the config second. Bedrock runs do not need one.
func GetAPIKey(cfg *Config) (string, error) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, nil
	}
	if cfg != nil && cfg.Anthropic.APIKey != "" {
		key := os.ExpandEnv(cfg.Anthropic.APIKey)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, nil
		}
	}
	return "", ErrNoAPIKey
}
