package openai

import (
	"net/http"
	"sync"

	"github.com/portfolio-globe/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenRouterBaseURL is the OpenAI-compatible endpoint used for remote
// relation lookups.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// DefaultModel is used when a request does not name a model.
const DefaultModel = "meta-llama/llama-3.1-8b-instruct:free"

// OpenAIClient implements ai.ChatClient against an OpenAI-compatible chat
// completions API.
//
// ChatClient is nil when no API key was configured; every call then fails
// with ai.ErrMissingCredential.
type OpenAIClient struct {
	model string

	chatURL string
	chatKey string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient *openai.Client
}

// NewOpenAIClientParams defines the configuration for NewOpenAIClient.
//
// ChatURL defaults to OpenRouterBaseURL and Model to DefaultModel.
type NewOpenAIClientParams struct {
	Model string

	ChatURL string
	ChatKey string

	// HTTPClient replaces the default transport, mainly for tests.
	HTTPClient *http.Client
}

// NewOpenAIClient creates a client. Requests are never retried.
//
// Example:
//
//	client := openai.NewOpenAIClient(openai.NewOpenAIClientParams{
//		ChatKey: os.Getenv("GLOBE_AI_REMOTE_KEY"),
//	})
func NewOpenAIClient(params NewOpenAIClientParams) *OpenAIClient {
	if params.ChatURL == "" {
		params.ChatURL = OpenRouterBaseURL
	}
	if params.Model == "" {
		params.Model = DefaultModel
	}
	return &OpenAIClient{
		model:      params.Model,
		chatURL:    params.ChatURL,
		chatKey:    params.ChatKey,
		ChatClient: newOpenaiClient(params.ChatURL, params.ChatKey, params.HTTPClient),
	}
}

// Configured reports whether an API key is present.
func (c *OpenAIClient) Configured() bool {
	return c.ChatClient != nil
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
	httpClient *http.Client,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		options = append(options, option.WithHTTPClient(httpClient))
	}

	client := openai.NewClient(options...)

	return &client
}
