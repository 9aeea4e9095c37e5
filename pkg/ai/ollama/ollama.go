package ollama

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/portfolio-globe/backend/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// DefaultBaseURL is where a locally running completion server listens.
const DefaultBaseURL = "http://127.0.0.1:11434"

// OllamaClient implements ai.ChatClient against a locally hosted model.
type OllamaClient struct {
	model string

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	baseURL    *url.URL
	httpClient *http.Client

	Client *api.Client
}

// NewOllamaClientParams contains configuration options for creating a new OllamaClient.
type NewOllamaClientParams struct {
	Model string

	BaseURL string
	ApiKey  string

	// MaxConcurrentRequests bounds in-flight requests. Values below 1 mean 1.
	MaxConcurrentRequests int64
	// HTTPClient replaces the default transport, mainly for tests.
	HTTPClient *http.Client
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		// don't overwrite if already set
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewOllamaClient creates a client for the server at BaseURL, or
// DefaultBaseURL when empty.
func NewOllamaClient(params NewOllamaClientParams) (*OllamaClient, error) {
	base := params.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}

	rt := http.DefaultTransport
	if params.HTTPClient != nil && params.HTTPClient.Transport != nil {
		rt = params.HTTPClient.Transport
	}
	headers := map[string]string{}
	if params.ApiKey != "" {
		headers["Authorization"] = "Bearer " + params.ApiKey
	}
	httpClient := &http.Client{
		Transport: &headerTransport{headers: headers, rt: rt},
	}
	if params.HTTPClient != nil {
		httpClient.Timeout = params.HTTPClient.Timeout
	}

	parallel := params.MaxConcurrentRequests
	if parallel < 1 {
		parallel = 1
	}

	return &OllamaClient{
		model: params.Model,

		reqLock: semaphore.NewWeighted(parallel),

		baseURL:    u,
		httpClient: httpClient,

		Client: api.NewClient(u, httpClient),
	}, nil
}

// BaseURL returns the server address the client talks to.
func (c *OllamaClient) BaseURL() string {
	return c.baseURL.String()
}
