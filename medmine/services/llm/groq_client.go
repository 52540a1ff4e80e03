// medmine/services/llm/groq_client.go
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	httputils "medmine/medmine/utils/http"
	"medmine/medmine/utils/logging"
)

type GroqClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewGroqClient returns a client for Groq's OpenAI-compatible endpoint.
func NewGroqClient(apiKey string) *GroqClient {
	return &GroqClient{
		baseURL: "https://api.groq.com/openai/v1",
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// WithBaseURL points the client at another OpenAI-compatible server.
func (c *GroqClient) WithBaseURL(u string) *GroqClient {
	c.baseURL = u
	return c
}

// Run (non-streaming) chat completion
func (c *GroqClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, "groq_service_run")()
	req.Stream = false

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	var resp struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
	}
	if err := httputils.PostJSON(ctx, c.http, url, c.apiKey, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) > 0 {
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("no choices returned")
}
