package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	httputils "aggregator/aggregator/utils/http"
	"aggregator/aggregator/utils/logging"
	"aggregator/aggregator/utils/stream"

	"go.uber.org/zap"
)

const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// OpenAIClient speaks the OpenAI chat completions protocol. OpenRouter and
// other compatible gateways use it with a different base URL and headers.
type OpenAIClient struct {
	name    string
	baseURL string
	keys    KeyFunc
	headers map[string]string
}

func NewOpenAIClient(keys KeyFunc) *OpenAIClient {
	return &OpenAIClient{name: "openai", baseURL: OpenAIBaseURL, keys: keys}
}

func NewOpenRouterClient(keys KeyFunc, referer, title string) *OpenAIClient {
	return &OpenAIClient{
		name:    "openrouter",
		baseURL: OpenRouterBaseURL,
		keys:    keys,
		headers: map[string]string{"HTTP-Referer": referer, "X-Title": title},
	}
}

// WithBaseURL points the client at another compatible endpoint.
func (c *OpenAIClient) WithBaseURL(baseURL string) *OpenAIClient {
	cp := *c
	cp.baseURL = strings.TrimRight(baseURL, "/")
	return &cp
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type completionChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) requestHeaders(ctx context.Context) (map[string]string, error) {
	key, err := resolveKey(ctx, c.name, c.keys)
	if err != nil {
		return nil, err
	}
	h := httputils.Bearer(key)
	for k, v := range c.headers {
		if v != "" {
			h[k] = v
		}
	}
	return h, nil
}

// Run executes a single completion request (non-streaming)
func (c *OpenAIClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, c.name+"_run")()
	headers, err := c.requestHeaders(ctx)
	if err != nil {
		return "", err
	}
	req.Stream = false

	var parsed completionResponse
	if err := httputils.PostJSON(ctx, c.baseURL+"/chat/completions", headers, req, &parsed); err != nil {
		return "", upstreamError(c.name, err)
	}
	if parsed.Error != nil {
		return "", upstreamError(c.name, fmt.Errorf("%s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", ErrEmptyAnswer
	}
	return parsed.Choices[0].Message.Content, nil
}

// RunStream reads the server-sent event stream and emits every delta.
func (c *OpenAIClient) RunStream(ctx context.Context, req ChatRequest) (*stream.Stream, error) {
	defer logging.LogDuration(ctx, c.name+"_run_stream")()
	headers, err := c.requestHeaders(ctx)
	if err != nil {
		return nil, err
	}
	req.Stream = true

	s := stream.New(ctx)
	body, err := httputils.PostStream(s.Context(), c.baseURL+"/chat/completions", headers, req)
	if err != nil {
		s.Cancel()
		return nil, upstreamError(c.name, err)
	}

	go func() {
		defer body.Close()
		model, err := c.readEvents(body, s, req.Model)
		s.Finish(model, err)
	}()
	return s, nil
}

func (c *OpenAIClient) readEvents(body io.Reader, s *stream.Stream, model string) (string, error) {
	reader := bufio.NewReader(body)
	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			logging.ErrorLogger.Error("stream read error", zap.String("provider", c.name), zap.Error(readErr))
			return model, fmt.Errorf("%s stream: %w", c.name, readErr)
		}
		// a final event may arrive without its trailing newline
		eof := readErr == io.EOF

		line = strings.TrimSpace(line)
		// Skip comments (OpenRouter sends ": OPENROUTER PROCESSING") and non-data lines
		if line == "" || !strings.HasPrefix(line, "data:") {
			if eof {
				return model, nil
			}
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return model, nil
		}

		var chunk completionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logging.ErrorLogger.Error("stream JSON parse error",
				zap.String("provider", c.name), zap.Error(err), zap.String("raw_line", data))
			if eof {
				return model, nil
			}
			continue
		}
		if chunk.Error != nil {
			return model, upstreamError(c.name, fmt.Errorf("%s", chunk.Error.Message))
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if !s.Emit(choice.Delta.Content) {
				logging.AppLogger.Info("stream cancelled", zap.String("provider", c.name))
				return model, nil
			}
		}
		if eof {
			return model, nil
		}
	}
}
