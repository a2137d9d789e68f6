package config

import (
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func contextFor(t *testing.T, args []string) *cli.Context {
	t.Helper()
	app := cli.NewApp()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range Flags() {
		if err := f.Apply(set); err != nil {
			t.Fatalf("Failed to apply flag: %v", err)
		}
	}
	if err := set.Parse(args); err != nil {
		t.Fatalf("Failed to parse args: %v", err)
	}
	return cli.NewContext(app, set, nil)
}

func TestFromContextDefaults(t *testing.T) {
	cfg := FromContext(contextFor(t, nil))

	if cfg.Port != "8000" {
		t.Errorf("Expected default port 8000, got %s", cfg.Port)
	}
	if cfg.ChartDir != "exports/charts" {
		t.Errorf("Expected default chart dir, got %s", cfg.ChartDir)
	}
	if !cfg.StrictSources {
		t.Error("Strict sources should default to true")
	}
	if cfg.ContinueOnError {
		t.Error("Continue on error should default to false")
	}
	if cfg.FetchTimeout != 30*time.Second {
		t.Errorf("Unexpected fetch timeout %v", cfg.FetchTimeout)
	}
}

func TestFromContextFlags(t *testing.T) {
	cfg := FromContext(contextFor(t, []string{
		"--api-key", "secret",
		"--bucket", "my-bucket",
		"--chart-dir", "./charts/",
		"--strict-sources=false",
		"--input-cost", "1.25",
	}))

	if cfg.APIKey != "secret" || cfg.BucketName != "my-bucket" {
		t.Errorf("Flags not applied: %+v", cfg)
	}
	if cfg.ChartDir != "charts" {
		t.Errorf("Chart dir should be cleaned, got %s", cfg.ChartDir)
	}
	if cfg.StrictSources {
		t.Error("Strict sources should be disabled")
	}
	if cfg.InputCostPerMToken != 1.25 {
		t.Errorf("Unexpected input cost %v", cfg.InputCostPerMToken)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{APIKey: "k", BucketName: "b", OpenAIAPIKey: "o", ChartDir: "charts"}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}

	err := Config{ChartDir: "."}.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}
	for _, want := range []string{"API_KEY", "AWS_BUCKET_NAME", "OPENAI_API_KEY", "RUTA_CHARTS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validation error should mention %s, got: %v", want, err)
		}
	}
}

func TestNewLoggerLevel(t *testing.T) {
	if got := NewLogger("debug", "production").GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("Expected debug level, got %v", got)
	}
	if got := NewLogger("bogus", "production").GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("Expected info fallback, got %v", got)
	}
}
