package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jorgeLDmesa/pandas-ai-api/internal/analysis"
	"github.com/jorgeLDmesa/pandas-ai-api/internal/cost"
	"github.com/jorgeLDmesa/pandas-ai-api/internal/dataset"
	"github.com/jorgeLDmesa/pandas-ai-api/internal/models"
)

var ErrNoQueries = fmt.Errorf("%w: at least one query is required", dataset.ErrInvalidInput)

type DatasetResolver interface {
	Resolve(ctx context.Context, src dataset.Source) (*dataset.Dataset, error)
}

type ChartUploader interface {
	UploadChart(ctx context.Context, localPath string) (string, error)
}

type Options struct {
	ChartDir string
	Pricing  cost.Pricing
	// ContinueOnError records a failing query as an error item and keeps
	// going instead of failing the whole request.
	ContinueOnError bool
}

type AnalysisService struct {
	resolver        DatasetResolver
	engine          analysis.Engine
	uploader        ChartUploader
	chartDir        string
	pricing         cost.Pricing
	continueOnError bool
	logger          zerolog.Logger
}

func NewAnalysisService(resolver DatasetResolver, engine analysis.Engine, uploader ChartUploader, opts Options, logger zerolog.Logger) *AnalysisService {
	return &AnalysisService{
		resolver:        resolver,
		engine:          engine,
		uploader:        uploader,
		chartDir:        filepath.Clean(opts.ChartDir),
		pricing:         opts.Pricing,
		continueOnError: opts.ContinueOnError,
		logger:          logger,
	}
}

// Analyze resolves the dataset once and answers the queries one by one, in
// order. The returned slice has one entry per query.
func (service *AnalysisService) Analyze(ctx context.Context, src dataset.Source, queries []string) ([]models.QueryResult, error) {
	if len(queries) == 0 {
		return nil, ErrNoQueries
	}
	for i, q := range queries {
		if strings.TrimSpace(q) == "" {
			return nil, fmt.Errorf("%w: query %d is empty", dataset.ErrInvalidInput, i+1)
		}
	}

	ds, err := service.resolver.Resolve(ctx, src)
	if err != nil {
		return nil, err
	}
	service.logger.Info().
		Str("source", string(src.Kind())).
		Int("rows", ds.Len()).
		Int("columns", len(ds.Headers)).
		Int("queries", len(queries)).
		Msg("[ANALYZE] dataset resolved")

	var total cost.Usage
	results := make([]models.QueryResult, 0, len(queries))
	for i, query := range queries {
		result, usage, err := service.processQuery(ctx, ds, query)
		total = total.Add(usage)
		if err != nil {
			service.logger.Error().Err(err).Int("index", i).Str("query", query).Msg("[ANALYZE] query failed")
			if !service.continueOnError {
				return nil, err
			}
			result = models.ErrorResult(query, err.Error(), cost.Format(service.pricing.Cost(usage)))
		}
		results = append(results, result)
	}

	service.logger.Info().
		Int("input_tokens", total.InputTokens).
		Int("output_tokens", total.OutputTokens).
		Str("cost", cost.Format(service.pricing.Cost(total))).
		Msg("[ANALYZE] request cost")
	return results, nil
}

// processQuery returns the usage even on failure when the engine reports it.
func (service *AnalysisService) processQuery(ctx context.Context, ds *dataset.Dataset, query string) (models.QueryResult, cost.Usage, error) {
	startTime := time.Now()

	answer, err := service.engine.Chat(ctx, ds, query)
	if err != nil {
		var usageErr *analysis.UsageError
		if errors.As(err, &usageErr) {
			return models.QueryResult{}, usageErr.Usage, err
		}
		return models.QueryResult{}, cost.Usage{}, err
	}
	spent := cost.Format(service.pricing.Cost(answer.Usage))

	path, isChart := service.ChartPath(answer.Value)
	if !isChart {
		service.logger.Info().Str("query", query).Str("cost", spent).Dur("duration", time.Since(startTime)).Msg("[ANALYZE] text result")
		return models.TextResult(query, stringify(answer.Value), spent), answer.Usage, nil
	}

	url, err := service.uploader.UploadChart(ctx, path)
	if err != nil {
		service.logger.Error().Err(err).Str("query", query).Str("file", path).Msg("[ANALYZE] chart upload failed")
		return models.UploadFailedResult(query, err.Error(), spent), answer.Usage, nil
	}

	service.logger.Info().Str("query", query).Str("url", url).Str("cost", spent).Dur("duration", time.Since(startTime)).Msg("[ANALYZE] chart result")
	return models.GraphResult(query, url, spent), answer.Usage, nil
}

// ChartPath reports whether an engine value names a chart file: a regular
// file directly inside the chart directory. Anything else is text, however
// much it looks like a path.
func (service *AnalysisService) ChartPath(value any) (string, bool) {
	s, ok := value.(string)
	if !ok || !strings.HasPrefix(s, service.chartDir) {
		return "", false
	}
	clean := filepath.Clean(s)
	if filepath.Dir(clean) != service.chartDir {
		return "", false
	}
	info, err := os.Lstat(clean)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return clean, true
}

// CleanupStaleCharts removes chart files older than maxAge, which are the
// leftovers of failed uploads.
func (service *AnalysisService) CleanupStaleCharts(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(service.chartDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read chart directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(service.chartDir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return analysis.FormatNumber(val)
	case float32:
		return analysis.FormatNumber(float64(val))
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
