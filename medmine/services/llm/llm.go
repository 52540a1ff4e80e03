package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"medmine/medmine/config"
	httputils "medmine/medmine/utils/http"
	"medmine/medmine/utils/logging"
)

// Runner completes one chat exchange.
type Runner interface {
	Run(ctx context.Context, req ChatRequest) (string, error)
}

type ChatRequest struct {
	Model    string      `json:"model"`
	Messages []Message   `json:"messages"`
	Stream   bool        `json:"stream"`
	Options  interface{} `json:"options,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// NewRunner picks the provider named by LLM_PROVIDER.
func NewRunner(cfg config.Config) (Runner, error) {
	switch strings.ToLower(cfg.LLMProvider) {
	case "", "ollama":
		return NewOllamaClient(cfg.OllamaURL), nil
	case "groq":
		if cfg.GroqAPIKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY is required for the groq provider")
		}
		return NewGroqClient(cfg.GroqAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

type OllamaClient struct {
	baseURL string
	http    *http.Client
}

func NewOllamaClient(baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434/api"
	}
	return &OllamaClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *OllamaClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, "llm_service_run")()
	req.Stream = false
	var resp ChatResponse
	if err := httputils.PostJSON(ctx, c.http, c.baseURL+"/chat", "", req, &resp); err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}
