package llm

import (
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

const YandexCompletionURL = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"

type YandexGPTClient struct {
	url      string
	folderID string
	keys     KeyFunc
}

func NewYandexGPTClient(keys KeyFunc, folderID string) *YandexGPTClient {
	return &YandexGPTClient{url: YandexCompletionURL, folderID: folderID, keys: keys}
}

func (c *YandexGPTClient) WithURL(url string) *YandexGPTClient {
	cp := *c
	cp.url = url
	return &cp
}

type yandexMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type yandexRequest struct {
	ModelURI          string          `json:"modelUri"`
	CompletionOptions yandexOptions   `json:"completionOptions"`
	Messages          []yandexMessage `json:"messages"`
}

type yandexOptions struct {
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

type yandexResponse struct {
	Result struct {
		Alternatives []struct {
			Message yandexMessage `json:"message"`
			Status  string        `json:"status"`
		} `json:"alternatives"`
		ModelVersion string `json:"modelVersion"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (r yandexResponse) text() string {
	if len(r.Result.Alternatives) == 0 {
		return ""
	}
	return r.Result.Alternatives[0].Message.Text
}

func (c *YandexGPTClient) build(req ChatRequest, streaming bool) yandexRequest {
	temp := req.Temperature
	if temp == 0 {
		temp = 0.6
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}
	msgs := make([]yandexMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, yandexMessage{Role: m.Role, Text: m.Content})
	}
	return yandexRequest{
		ModelURI:          fmt.Sprintf("gpt://%s/%s", c.folderID, req.Model),
		CompletionOptions: yandexOptions{Stream: streaming, Temperature: temp, MaxTokens: maxTokens},
		Messages:          msgs,
	}
}

func (c *YandexGPTClient) headers(ctx context.Context) (map[string]string, error) {
	if c.folderID == "" {
		return nil, fmt.Errorf("yandexgpt folder id not configured")
	}
	key, err := resolveKey(ctx, "yandexgpt", c.keys)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Api-Key " + key, "x-folder-id": c.folderID}, nil
}

func (c *YandexGPTClient) Run(ctx context.Context, req ChatRequest) (string, error) {
	defer logging.LogDuration(ctx, "yandexgpt_run")()
	headers, err := c.headers(ctx)
	if err != nil {
		return "", err
	}
	var resp yandexResponse
	if err := httputils.PostJSON(ctx, c.url, headers, c.build(req, false), &resp); err != nil {
		return "", upstreamError("yandexgpt", err)
	}
	if resp.text() == "" {
		return "", ErrEmptyAnswer
	}
	return resp.text(), nil
}

// RunStream emits deltas. Each streamed line carries the whole text so far,
// so the increment is the suffix beyond what was already emitted.
func (c *YandexGPTClient) RunStream(ctx context.Context, req ChatRequest) (*stream.Stream, error) {
	defer logging.LogDuration(ctx, "yandexgpt_run_stream")()
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}

	s := stream.New(ctx)
	body, err := httputils.PostStream(s.Context(), c.url, headers, c.build(req, true))
	if err != nil {
		s.Cancel()
		return nil, upstreamError("yandexgpt", err)
	}

	go func() {
		defer body.Close()
		decoder := json.NewDecoder(body)
		model := req.Model
		var sent string
		for {
			var chunk yandexResponse
			if err := decoder.Decode(&chunk); err != nil {
				if err == io.EOF {
					s.Finish(model, nil)
					return
				}
				logging.ErrorLogger.Error("yandexgpt stream decode error", zap.Error(err))
				s.Finish(model, fmt.Errorf("yandexgpt stream: %w", err))
				return
			}
			if chunk.Error != nil {
				s.Finish(model, upstreamError("yandexgpt", fmt.Errorf("%s", chunk.Error.Message)))
				return
			}
			if v := chunk.Result.ModelVersion; v != "" {
				model = req.Model + "@" + v
			}
			full := chunk.text()
			if !strings.HasPrefix(full, sent) {
				logging.ErrorLogger.Error("yandexgpt stream rewrote emitted text", zap.Int("emitted", len(sent)))
				continue
			}
			if delta := full[len(sent):]; delta != "" {
				if !s.Emit(delta) {
					s.Finish(model, nil)
					return
				}
				sent = full
			}
		}
	}()
	return s, nil
}
