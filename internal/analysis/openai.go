package analysis

import (
	"net/http"
	"time"

	"github.com/hoangvvo/llm-sdk/sdk-go/openai"
)

// NewOpenAIModel returns the production Generator. An empty baseURL uses the
// public OpenAI endpoint.
func NewOpenAIModel(apiKey, baseURL, modelID string, timeout time.Duration) Generator {
	return openai.NewOpenAIModel(modelID, openai.OpenAIModelOptions{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	})
}
