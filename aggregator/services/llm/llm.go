package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	httputils "aggregator/aggregator/utils/http"
	"aggregator/aggregator/utils/logging"
	"aggregator/aggregator/utils/stream"

	"go.uber.org/zap"
)

var (
	// The texts are matched by the chat client's error classifier.
	ErrRateLimited = errors.New("Rate limit exceeded")
	ErrNoAPIKey    = errors.New("API key not configured")
	ErrEmptyAnswer = errors.New("no content in model response")
)

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is one upstream model API. RunStream's stream reports the served
// model name through Model().
type Provider interface {
	Run(ctx context.Context, req ChatRequest) (string, error)
	RunStream(ctx context.Context, req ChatRequest) (*stream.Stream, error)
}

// KeyFunc resolves the credential for a provider at call time, so keys
// rotated through the admin API apply without a restart.
type KeyFunc func(ctx context.Context) (string, error)

func StaticKey(key string) KeyFunc {
	return func(context.Context) (string, error) { return key, nil }
}

func resolveKey(ctx context.Context, provider string, keys KeyFunc) (string, error) {
	if keys == nil {
		return "", fmt.Errorf("%s %w", provider, ErrNoAPIKey)
	}
	key, err := keys(ctx)
	if err != nil {
		return "", fmt.Errorf("%s key lookup: %w", provider, err)
	}
	if key == "" {
		return "", fmt.Errorf("%s %w", provider, ErrNoAPIKey)
	}
	return key, nil
}

// upstreamError maps transport errors to the errors callers classify.
func upstreamError(provider string, err error) error {
	var se *httputils.StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w: %s", provider, ErrRateLimited, se.Body)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: invalid API key: %s", provider, se.Body)
		}
	}
	if strings.Contains(err.Error(), "free-models-per-day") {
		return fmt.Errorf("%s: %w: %v", provider, ErrRateLimited, err)
	}
	return fmt.Errorf("%s request failed: %w", provider, err)
}

type OllamaClient struct {
	baseURL string
}

func NewOllamaClient(baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434/api"
	}
	return &OllamaClient{baseURL: strings.TrimRight(baseURL, "/")}
}

type ollamaResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

func (c *OllamaClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, "ollama_run")()
	req.Stream = false
	var resp ollamaResponse
	if err := httputils.PostJSON(ctx, c.baseURL+"/chat", nil, req, &resp); err != nil {
		return "", upstreamError("ollama", err)
	}
	if resp.Message.Content == "" {
		return "", ErrEmptyAnswer
	}
	return resp.Message.Content, nil
}

func (c *OllamaClient) RunStream(ctx context.Context, req ChatRequest) (*stream.Stream, error) {
	defer logging.LogDuration(ctx, "ollama_run_stream")()
	req.Stream = true

	s := stream.New(ctx)
	body, err := httputils.PostStream(s.Context(), c.baseURL+"/chat", nil, req)
	if err != nil {
		s.Cancel()
		return nil, upstreamError("ollama", err)
	}

	go func() {
		defer body.Close()
		decoder := json.NewDecoder(body)
		model := req.Model
		for {
			var chunk ollamaResponse
			if err := decoder.Decode(&chunk); err != nil {
				if err == io.EOF {
					s.Finish(model, nil)
					return
				}
				logging.ErrorLogger.Error("ollama stream decode error", zap.Error(err))
				s.Finish(model, fmt.Errorf("ollama stream: %w", err))
				return
			}
			if chunk.Error != "" {
				s.Finish(model, fmt.Errorf("ollama: %s", chunk.Error))
				return
			}
			if chunk.Model != "" {
				model = chunk.Model
			}
			if chunk.Message.Content != "" && !s.Emit(chunk.Message.Content) {
				logging.AppLogger.Info("ollama stream cancelled")
				s.Finish(model, nil)
				return
			}
			if chunk.Done {
				s.Finish(model, nil)
				return
			}
		}
	}()
	return s, nil
}
