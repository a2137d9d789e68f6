package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type RouterOptions struct {
	APIKey      string
	MaxUploadMB int64
}

// SetupRouter wires the health and analyze routes. Only /analyze sits behind
// the API key.
func SetupRouter(handler *AnalysisHandler, opts RouterOptions, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	analyze := []gin.HandlerFunc{APIKeyAuth(opts.APIKey, logger)}
	if opts.MaxUploadMB > 0 {
		router.MaxMultipartMemory = opts.MaxUploadMB << 20
		analyze = append(analyze, BodyLimit(opts.MaxUploadMB<<20))
	}
	analyze = append(analyze, handler.Analyze)

	router.GET("/health", handler.Health)
	router.POST("/analyze", analyze...)

	return router
}
