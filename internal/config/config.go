package config

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

// Config is built once at startup and handed to every component.
type Config struct {
	Port string
	Env  string

	LogLevel string

	APIKey string

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	BucketName         string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	Model         string
	ModelTimeout  time.Duration

	// Prices in USD per million tokens.
	InputCostPerMToken  float64
	OutputCostPerMToken float64

	ChartDir        string
	MaxUploadMB     int64
	FetchTimeout    time.Duration
	StrictSources   bool
	ContinueOnError bool
	ChartMaxAge     time.Duration
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "port", Value: "8000", Usage: "HTTP listen port", EnvVars: []string{"PORT"}},
		&cli.StringFlag{Name: "env", Value: "production", Usage: "Runtime environment (development enables console logs)", EnvVars: []string{"ENV"}},
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Log level (debug, info, warn, error)", EnvVars: []string{"LOG_LEVEL"}},
		&cli.StringFlag{Name: "api-key", Usage: "Shared secret expected in the X-API-Key header", EnvVars: []string{"API_KEY"}},
		&cli.StringFlag{Name: "aws-region", Usage: "AWS region of the chart bucket", EnvVars: []string{"AWS_REGION"}},
		&cli.StringFlag{Name: "aws-access-key-id", Usage: "AWS access key id (default credential chain when empty)", EnvVars: []string{"AWS_ACCESS_KEY_ID"}},
		&cli.StringFlag{Name: "aws-secret-access-key", Usage: "AWS secret access key", EnvVars: []string{"AWS_SECRET_ACCESS_KEY"}},
		&cli.StringFlag{Name: "bucket", Usage: "S3 bucket receiving charts", EnvVars: []string{"AWS_BUCKET_NAME"}},
		&cli.StringFlag{Name: "openai-api-key", Usage: "OpenAI API key", EnvVars: []string{"OPENAI_API_KEY"}},
		&cli.StringFlag{Name: "openai-base-url", Usage: "OpenAI-compatible base URL override", EnvVars: []string{"OPENAI_BASE_URL"}},
		&cli.StringFlag{Name: "model", Value: "gpt-4o-mini", Usage: "Model id used to plan queries", EnvVars: []string{"OPENAI_MODEL"}},
		&cli.DurationFlag{Name: "model-timeout", Value: 60 * time.Second, Usage: "Timeout of one model call", EnvVars: []string{"MODEL_TIMEOUT"}},
		&cli.Float64Flag{Name: "input-cost", Value: 0.15, Usage: "USD per million input tokens", EnvVars: []string{"INPUT_COST_PER_MTOKEN"}},
		&cli.Float64Flag{Name: "output-cost", Value: 0.60, Usage: "USD per million output tokens", EnvVars: []string{"OUTPUT_COST_PER_MTOKEN"}},
		&cli.StringFlag{Name: "chart-dir", Value: "exports/charts", Usage: "Local directory charts are written to before upload", EnvVars: []string{"RUTA_CHARTS", "CHART_DIR"}},
		&cli.Int64Flag{Name: "max-upload-mb", Value: 32, Usage: "Maximum request body size in MB", EnvVars: []string{"MAX_FILE_SIZE_MB"}},
		&cli.DurationFlag{Name: "fetch-timeout", Value: 30 * time.Second, Usage: "Timeout for downloading dataframe_url", EnvVars: []string{"FETCH_TIMEOUT"}},
		&cli.BoolFlag{Name: "strict-sources", Value: true, Usage: "Reject requests that send more than one data source", EnvVars: []string{"STRICT_SOURCES"}},
		&cli.BoolFlag{Name: "continue-on-error", Usage: "Report failing queries as error items instead of failing the request", EnvVars: []string{"CONTINUE_ON_ERROR"}},
		&cli.DurationFlag{Name: "chart-max-age", Value: 24 * time.Hour, Usage: "Age after which leftover local charts are removed (0 disables)", EnvVars: []string{"CHART_MAX_AGE"}},
	}
}

func FromContext(c *cli.Context) Config {
	return Config{
		Port:                c.String("port"),
		Env:                 c.String("env"),
		LogLevel:            c.String("log-level"),
		APIKey:              c.String("api-key"),
		AWSRegion:           c.String("aws-region"),
		AWSAccessKeyID:      c.String("aws-access-key-id"),
		AWSSecretAccessKey:  c.String("aws-secret-access-key"),
		BucketName:          c.String("bucket"),
		OpenAIAPIKey:        c.String("openai-api-key"),
		OpenAIBaseURL:       c.String("openai-base-url"),
		Model:               c.String("model"),
		ModelTimeout:        c.Duration("model-timeout"),
		InputCostPerMToken:  c.Float64("input-cost"),
		OutputCostPerMToken: c.Float64("output-cost"),
		ChartDir:            filepath.Clean(c.String("chart-dir")),
		MaxUploadMB:         c.Int64("max-upload-mb"),
		FetchTimeout:        c.Duration("fetch-timeout"),
		StrictSources:       c.Bool("strict-sources"),
		ContinueOnError:     c.Bool("continue-on-error"),
		ChartMaxAge:         c.Duration("chart-max-age"),
	}
}

// Validate reports every missing required setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("API_KEY is required"))
	}
	if strings.TrimSpace(c.BucketName) == "" {
		errs = append(errs, errors.New("AWS_BUCKET_NAME is required"))
	}
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if strings.TrimSpace(c.ChartDir) == "" || c.ChartDir == "." {
		errs = append(errs, errors.New("RUTA_CHARTS must name a dedicated directory"))
	}
	if c.InputCostPerMToken < 0 || c.OutputCostPerMToken < 0 {
		errs = append(errs, errors.New("token prices must not be negative"))
	}
	return errors.Join(errs...)
}
