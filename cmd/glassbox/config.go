package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/glassbox/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show effective configuration",
	Long: `Print the effective configuration after merging all layers.

Precedence (highest first):
  1. Environment variables (GLASSBOX_*, ANTHROPIC_API_KEY)
  2. Project config (.glassbox.yaml in this directory or a parent)
  3. User config (~/.config/glassbox/config.yaml)
  4. Built-in defaults

With a key argument, prints just that value.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if len(args) == 1 {
		return displayConfigKey(cfg, args[0])
	}
	displayAllConfig(cfg)
	return nil
}

// configValues returns every effective setting as ordered key/value
// pairs. The API key is masked.
func configValues(cfg *config.Config) [][2]string {
	apiKey := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKey = "****"
	}
	return [][2]string{
		{"anthropic.api_key", apiKey},
		{"anthropic.use_aws_bedrock", strconv.FormatBool(cfg.Anthropic.UseAWSBedrock)},
		{"anthropic.aws_region", cfg.Anthropic.AWSRegion},
		{"anthropic.aws_profile", cfg.Anthropic.AWSProfile},
		{"models.fast", cfg.Models.Fast},
		{"models.deep", cfg.Models.Deep},
		{"scout.max_file_bytes", strconv.FormatInt(cfg.Scout.MaxFileBytes, 10)},
		{"scout.survey_chunk", strconv.Itoa(cfg.Scout.SurveyChunk)},
		{"upload.max_failures", strconv.Itoa(cfg.Upload.MaxFailures)},
		{"upload.keep_staged", strconv.FormatBool(cfg.Upload.KeepStaged)},
		{"distill.small_file_threshold", strconv.Itoa(cfg.Distill.SmallFileThreshold)},
		{"distill.batch_size", strconv.Itoa(cfg.Distill.BatchSize)},
		{"distill.concurrency", strconv.Itoa(cfg.Distill.Concurrency)},
		{"plan.overlap_threshold", strconv.FormatFloat(cfg.Plan.OverlapThreshold, 'g', -1, 64)},
		{"plan.max_per_pass", strconv.Itoa(cfg.Plan.MaxPerPass)},
		{"draft.max_fixes", strconv.Itoa(cfg.Draft.MaxFixes)},
		{"draft.warn_lines", strconv.Itoa(cfg.Draft.WarnLines)},
		{"draft.warn_decls", strconv.Itoa(cfg.Draft.WarnDecls)},
		{"draft.skip_render", strconv.FormatBool(cfg.Draft.SkipRender)},
		{"audit.overlap_threshold", strconv.FormatFloat(cfg.Audit.OverlapThreshold, 'g', -1, 64)},
		{"audit.title_threshold", strconv.FormatFloat(cfg.Audit.TitleThreshold, 'g', -1, 64)},
		{"invoker.max_attempts", strconv.Itoa(cfg.Invoker.MaxAttempts)},
		{"invoker.transport_retries", strconv.Itoa(cfg.Invoker.TransportRetries)},
		{"invoker.backoff_base", cfg.Invoker.BackoffBase.String()},
		{"invoker.timeout", cfg.Invoker.Timeout.String()},
		{"invoker.requests_per_minute", strconv.Itoa(cfg.Invoker.RequestsPerMinute)},
		{"invoker.max_tokens", strconv.Itoa(cfg.Invoker.MaxTokens)},
		{"render.endpoint", cfg.Render.Endpoint},
		{"render.format", cfg.Render.Format},
		{"render.timeout", cfg.Render.Timeout.String()},
		{"output.dir", cfg.Output.Dir},
	}
}

func displayAllConfig(cfg *config.Config) {
	for _, kv := range configValues(cfg) {
		fmt.Printf("%s: %s\n", kv[0], kv[1])
	}
}

func displayConfigKey(cfg *config.Config, key string) error {
	want := strings.ToLower(key)
	for _, kv := range configValues(cfg) {
		if kv[0] == want {
			fmt.Println(kv[1])
			return nil
		}
	}
	return fmt.Errorf("unknown configuration key: %s", key)
}
