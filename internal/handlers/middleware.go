package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jorgeLDmesa/pandas-ai-api/internal/models"
)

const (
	APIKeyHeader    = "X-API-Key"
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// APIKeyAuth rejects requests whose X-API-Key header differs from apiKey.
// An empty apiKey rejects everything.
func APIKeyAuth(apiKey string, logger zerolog.Logger) gin.HandlerFunc {
	expected := []byte(apiKey)
	return func(ctx *gin.Context) {
		provided := []byte(ctx.GetHeader(APIKeyHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
			logger.Warn().
				Str("request_id", ctx.GetString(requestIDKey)).
				Str("ip", ctx.ClientIP()).
				Bool("header_present", len(provided) > 0).
				Msg("[AUTH] [ERROR] invalid API key")
			ctx.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{
				Detail: "Could not validate API Key",
			})
			return
		}
		ctx.Next()
	}
}

// RequestLogger tags each request with an id and logs it once completed.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		startTime := time.Now()

		requestID := ctx.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx.Set(requestIDKey, requestID)
		ctx.Header(RequestIDHeader, requestID)

		ctx.Next()

		logger.Info().
			Str("request_id", requestID).
			Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Int("status", ctx.Writer.Status()).
			Dur("duration", time.Since(startTime)).
			Str("ip", ctx.ClientIP()).
			Msg("request")
	}
}

// BodyLimit caps the request body. Reads past the limit fail, which the
// analyze handler reports as a bad request.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxBytes)
		ctx.Next()
	}
}
