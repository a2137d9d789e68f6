package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	llmsdk "github.com/hoangvvo/llm-sdk/sdk-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jorgeLDmesa/pandas-ai-api/internal/cost"
	"github.com/jorgeLDmesa/pandas-ai-api/internal/dataset"
)

const sampleRows = 5

// Answer is what one Chat call produced. Value is a string (text, or the
// path of a chart file written under the chart directory) or a float64.
type Answer struct {
	Value any
	Usage cost.Usage
}

// UsageError is a failure after the model already answered, so the tokens
// were spent and should still be billed.
type UsageError struct {
	Err   error
	Usage cost.Usage
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

// Engine answers one natural-language query about a dataset. Chart answers
// leave a file on disk that the caller owns.
type Engine interface {
	Chat(ctx context.Context, ds *dataset.Dataset, query string) (*Answer, error)
}

// Generator is the part of llmsdk.LanguageModel the engine needs.
type Generator interface {
	Generate(ctx context.Context, input *llmsdk.LanguageModelInput) (*llmsdk.ModelResponse, error)
}

// LLMEngine asks the model for a Plan and executes it locally. The model sees
// the column names, detected numeric columns and a few sample rows only.
type LLMEngine struct {
	model    Generator
	chartDir string
	logger   zerolog.Logger
}

func NewLLMEngine(model Generator, chartDir string, logger zerolog.Logger) (*LLMEngine, error) {
	chartDir = filepath.Clean(chartDir)
	if err := os.MkdirAll(chartDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create chart directory: %w", err)
	}
	return &LLMEngine{model: model, chartDir: chartDir, logger: logger}, nil
}

func (e *LLMEngine) ChartDir() string {
	return e.chartDir
}

func (e *LLMEngine) Chat(ctx context.Context, ds *dataset.Dataset, query string) (*Answer, error) {
	summary, err := json.MarshalIndent(ds.Summary(sampleRows), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dataset summary: %w", err)
	}

	systemPrompt := buildSystemPrompt(string(summary))
	temperature := 0.0
	format := llmsdk.NewResponseFormatJSON("analysis_plan", nil, &planSchema)

	resp, err := e.model.Generate(ctx, &llmsdk.LanguageModelInput{
		SystemPrompt: &systemPrompt,
		Messages: []llmsdk.Message{{
			UserMessage: &llmsdk.UserMessage{
				Content: []llmsdk.Part{{TextPart: &llmsdk.TextPart{Text: query}}},
			},
		}},
		ResponseFormat: &format,
		Temperature:    &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("language model error: %w", err)
	}

	answer := &Answer{Usage: usageOf(resp)}

	plan, err := parsePlan(responseText(resp))
	if err != nil {
		return nil, &UsageError{Err: err, Usage: answer.Usage}
	}
	e.logger.Debug().
		Str("kind", plan.Kind).
		Str("aggregation", plan.Aggregation).
		Str("measure", plan.Measure).
		Str("group_by", plan.GroupBy).
		Msg("[ENGINE] plan ready")

	outcome, err := Execute(plan, ds)
	if err != nil {
		return nil, &UsageError{Err: fmt.Errorf("failed to execute plan: %w", err), Usage: answer.Usage}
	}

	if plan.Kind == KindChart {
		path, err := e.writeChart(plan, outcome.Groups)
		if err != nil {
			return nil, &UsageError{Err: err, Usage: answer.Usage}
		}
		answer.Value = path
		return answer, nil
	}

	value := textValue(plan, outcome)
	if s, ok := value.(string); ok && e.pointsIntoChartDir(s) {
		return nil, &UsageError{Err: errors.New("model answer names a path in the chart directory"), Usage: answer.Usage}
	}
	answer.Value = value
	return answer, nil
}

// pointsIntoChartDir reports whether a text answer would be taken for a chart
// file. Only writeChart may produce such values.
func (e *LLMEngine) pointsIntoChartDir(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, e.chartDir) || strings.HasPrefix(filepath.Clean(s), e.chartDir)
}

func (e *LLMEngine) writeChart(plan *Plan, groups []Group) (string, error) {
	path := filepath.Join(e.chartDir, "chart_"+uuid.New().String()+".png")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create chart file: %w", err)
	}

	if err := renderChart(plan.ChartType, plan.Title, groups, f); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to render chart: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write chart file: %w", err)
	}
	return path, nil
}

// textValue returns a float64 for a single total so callers see a number,
// and a string for everything else.
func textValue(plan *Plan, outcome *Outcome) any {
	if outcome.Answer != "" {
		return outcome.Answer
	}

	if !outcome.Grouped && len(outcome.Groups) == 1 {
		v := outcome.Groups[0].Value
		if strings.Contains(plan.Answer, "{value}") {
			return strings.ReplaceAll(plan.Answer, "{value}", FormatNumber(v))
		}
		return v
	}

	if len(outcome.Groups) == 0 {
		return "No rows matched the query."
	}
	lines := make([]string, 0, len(outcome.Groups))
	for _, g := range outcome.Groups {
		lines = append(lines, g.Label+": "+FormatNumber(g.Value))
	}
	return strings.Join(lines, "\n")
}

// FormatNumber prints floats without exponent and without float noise.
func FormatNumber(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	d := decimal.NewFromFloat(v).Round(6)
	return d.String()
}

func responseText(resp *llmsdk.ModelResponse) string {
	var b strings.Builder
	for _, part := range resp.Content {
		if part.TextPart != nil {
			b.WriteString(part.TextPart.Text)
		}
	}
	return b.String()
}

func usageOf(resp *llmsdk.ModelResponse) cost.Usage {
	var u cost.Usage
	if resp.Usage != nil {
		u.InputTokens = resp.Usage.InputTokens
		u.OutputTokens = resp.Usage.OutputTokens
	}
	if resp.Cost != nil {
		reported := decimal.NewFromFloat(*resp.Cost)
		u.Reported = &reported
	}
	return u
}

func buildSystemPrompt(summary string) string {
	var b strings.Builder
	b.WriteString(`You translate questions about a table into an analysis plan.
You do NOT compute values. A local engine executes the plan over the full table.

`)
	b.WriteString("TABLE SUMMARY (column names, numeric columns, first rows only):\n")
	b.WriteString(summary)
	b.WriteString(`

RULES:
- Use column names exactly as listed in "columns".
- "measure" must be one of "numeric_columns" unless aggregation is count or none.
- Use aggregation "none" only when the answer follows from the summary itself (for example "which columns are there?"), and put the answer in "answer".
- For "how many rows/records" use aggregation "count" with an empty measure.
- Set kind "chart" only when the user asks for a chart, plot, graph or visualization. Prefer chart_type "line" for values over time, "pie" for shares of a whole, "bar" otherwise.
- Filters compare cell text for equality, case-insensitively.
- "answer" may contain {value} where the computed number should go; leave it empty otherwise.
`)
	return b.String()
}
