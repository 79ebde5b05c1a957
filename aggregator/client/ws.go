package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"aggregator/aggregator/chat"
	"aggregator/aggregator/utils/logging"
	"aggregator/aggregator/utils/stream"
	"aggregator/aggregator/utils/types"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// wsURL maps the http(s) base URL to the ws(s) streaming endpoint.
func (c *Client) wsURL() string {
	u := c.baseURL + "/chat/ws"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func (c *Client) sendStream(ctx context.Context, req chat.SendRequest) (*stream.Stream, error) {
	s := stream.New(ctx)

	opts := &websocket.DialOptions{}
	if h := c.headers(); h != nil {
		opts.HTTPHeader = http.Header{}
		for k, v := range h {
			opts.HTTPHeader.Set(k, v)
		}
	}
	conn, _, err := websocket.Dial(s.Context(), c.wsURL(), opts)
	if err != nil {
		s.Cancel()
		return nil, fmt.Errorf("open stream: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	if err := wsjson.Write(s.Context(), conn, toWire(req)); err != nil {
		conn.Close(websocket.StatusInternalError, "write failed")
		s.Cancel()
		return nil, fmt.Errorf("send message: %w", err)
	}

	go func() {
		model, err := readFrames(s, conn)
		if err != nil && s.Context().Err() != nil {
			err = s.Context().Err()
		}
		if err != nil {
			conn.Close(websocket.StatusGoingAway, "")
		} else {
			conn.Close(websocket.StatusNormalClosure, "")
		}
		s.Finish(model, err)
	}()
	return s, nil
}

func readFrames(s *stream.Stream, conn *websocket.Conn) (string, error) {
	ctx := s.Context()
	for {
		var frame types.StreamFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return "", fmt.Errorf("read stream: %w", err)
		}
		switch frame.Type {
		case types.FrameChunk:
			var p types.ChunkPayload
			if err := json.Unmarshal(frame.Payload, &p); err != nil {
				logging.ErrorLogger.Error("bad chunk frame", zap.Error(err))
				continue
			}
			if !s.Emit(p.Chunk) {
				return "", ctx.Err()
			}
		case types.FrameDone:
			var p types.DonePayload
			_ = json.Unmarshal(frame.Payload, &p)
			return p.UsedModel, nil
		case types.FrameError:
			var p types.ErrorPayload
			if err := json.Unmarshal(frame.Payload, &p); err != nil || p.Error == "" {
				return "", errors.New("stream failed")
			}
			return "", errors.New(p.Error)
		default:
			logging.AppLogger.Debug("ignoring stream frame", zap.String("type", frame.Type))
		}
	}
}
