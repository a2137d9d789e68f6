package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog"

	"github.com/jorgeLDmesa/pandas-ai-api/internal/dataset"
	"github.com/jorgeLDmesa/pandas-ai-api/internal/models"
)

type Analyzer interface {
	Analyze(ctx context.Context, src dataset.Source, queries []string) ([]models.QueryResult, error)
}

type AnalysisHandler struct {
	service Analyzer
	logger  zerolog.Logger
}

func NewAnalysisHandler(service Analyzer, logger zerolog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		service: service,
		logger:  logger,
	}
}

func (handler *AnalysisHandler) Analyze(ctx *gin.Context) {
	startTime := time.Now()
	clientIP := ctx.ClientIP()
	requestID := ctx.GetString(requestIDKey)

	handler.logger.Info().Str("request_id", requestID).Str("ip", clientIP).Msg("[ANALYZE] starting analyze request")

	req, src, err := handler.bindRequest(ctx)
	if err != nil {
		handler.logger.Warn().Err(err).Str("request_id", requestID).Str("ip", clientIP).Msg("[ANALYZE] [ERROR] invalid request")
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Detail: err.Error()})
		return
	}

	results, err := handler.service.Analyze(ctx.Request.Context(), src, req.Queries)
	if err != nil {
		status := statusFor(err)
		handler.logger.Error().Err(err).
			Str("request_id", requestID).
			Str("ip", clientIP).
			Int("status", status).
			Dur("duration", time.Since(startTime)).
			Msg("[ANALYZE] [ERROR] analyze failed")
		ctx.JSON(status, models.ErrorResponse{Detail: err.Error()})
		return
	}

	handler.logger.Info().
		Str("request_id", requestID).
		Str("ip", clientIP).
		Int("results", len(results)).
		Dur("duration", time.Since(startTime)).
		Msg("[ANALYZE] [SUCCESS] analyze completed")

	ctx.JSON(http.StatusOK, results)
}

// bindRequest reads either a multipart/urlencoded form or a JSON body.
func (handler *AnalysisHandler) bindRequest(ctx *gin.Context) (models.AnalyzeRequest, dataset.Source, error) {
	var req models.AnalyzeRequest
	var src dataset.Source

	if ctx.ContentType() == binding.MIMEJSON {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			return req, src, fmt.Errorf("invalid JSON body: %w", err)
		}
	} else {
		if err := ctx.ShouldBind(&req); err != nil {
			return req, src, fmt.Errorf("invalid form data: %w", err)
		}

		fileHeader, err := ctx.FormFile("file")
		switch {
		case err == nil:
			file, err := fileHeader.Open()
			if err != nil {
				return req, src, fmt.Errorf("failed to open uploaded file: %w", err)
			}
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				return req, src, fmt.Errorf("failed to read uploaded file: %w", err)
			}
			src.File = data
			src.FileName = fileHeader.Filename
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		default:
			return req, src, fmt.Errorf("failed to read uploaded file: %w", err)
		}
	}

	src.Base64 = req.Base64File
	src.URL = req.DataframeURL
	return req, src, nil
}

func (handler *AnalysisHandler) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, models.HealthResponse{Status: "healthy"})
}

func statusFor(err error) int {
	if errors.Is(err, dataset.ErrInvalidInput) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
