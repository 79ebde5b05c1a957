package routes

import (
	"context"
	"net/http"
	"strconv"

	"aggregator/aggregator/config"
	"aggregator/aggregator/controllers"
	"aggregator/aggregator/metrics"
	"aggregator/aggregator/middlewares"
	"aggregator/aggregator/utils/logging"
	"aggregator/aggregator/utils/types"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func ChatRoutes(ctrl *controllers.ChatController, limiter middlewares.Limiter, cfg config.Config) chi.Router {
	r := chi.NewRouter()

	r.Group(func(gr chi.Router) {
		gr.Use(middlewares.RateLimit(limiter))

		// POST /chat : send message, whole answer at once
		gr.Post("/", handleJSON(func(r *http.Request) (any, int, error) {
			var req types.ChatRequest
			if err := decodeJSON(r, &req); err != nil {
				return nil, http.StatusBadRequest, err
			}
			model := ctrl.ModelFor(req.ModelID)
			resp, err := ctrl.Chat(r.Context(), req)
			if err != nil {
				metrics.ChatRequests.WithLabelValues(model, "sync", "error").Inc()
				return nil, statusFor(err), err
			}
			metrics.ChatRequests.WithLabelValues(model, "sync", "ok").Inc()
			return resp, http.StatusOK, nil
		}))

		// GET /chat/ws : streaming variant
		gr.HandleFunc("/ws", chatSocket(ctrl, cfg))
	})

	r.Get("/models", handleJSON(func(r *http.Request) (any, int, error) {
		return ctrl.Models(), http.StatusOK, nil
	}))

	r.Post("/messages", handleJSON(func(r *http.Request) (any, int, error) {
		var req types.SaveMessageRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, http.StatusBadRequest, err
		}
		if err := ctrl.SaveMessage(r.Context(), req); err != nil {
			return nil, statusFor(err), err
		}
		metrics.MessagesSaved.WithLabelValues(req.Role).Inc()
		return map[string]bool{"success": true}, http.StatusCreated, nil
	}))

	r.Get("/history", handleJSON(func(r *http.Request) (any, int, error) {
		resp, err := ctrl.History(r.Context(), r.URL.Query().Get("session_id"))
		if err != nil {
			return nil, statusFor(err), err
		}
		return resp, http.StatusOK, nil
	}))

	r.Delete("/history", handleJSON(func(r *http.Request) (any, int, error) {
		n, err := ctrl.DeleteHistory(r.Context(), r.URL.Query().Get("session_id"))
		if err != nil {
			return nil, statusFor(err), err
		}
		return map[string]int64{"deleted": n}, http.StatusOK, nil
	}))

	r.Group(func(gr chi.Router) {
		gr.Use(middlewares.AuthMiddleware(cfg))
		gr.Get("/sessions", handleJSON(func(r *http.Request) (any, int, error) {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			sessions, err := ctrl.ListSessions(r.Context(), limit)
			if err != nil {
				return nil, statusFor(err), err
			}
			return sessions, http.StatusOK, nil
		}))
	})
	return r
}

func acceptOptions(cfg config.Config) *websocket.AcceptOptions {
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			return &websocket.AcceptOptions{InsecureSkipVerify: true}
		}
	}
	return &websocket.AcceptOptions{OriginPatterns: cfg.AllowedOrigins}
}

// chatSocket reads one ChatRequest frame, relays the completion as
// response_chunk frames and ends with response_done or error.
func chatSocket(ctrl *controllers.ChatController, cfg config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, acceptOptions(cfg))
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		var req types.ChatRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			writeFrame(ctx, conn, types.FrameError, types.ErrorPayload{Error: "invalid json"})
			conn.Close(websocket.StatusUnsupportedData, "invalid request")
			return
		}
		// the client closing the socket cancels the upstream completion
		ctx = conn.CloseRead(ctx)

		model := ctrl.ModelFor(req.ModelID)
		s, fallback, err := ctrl.ChatStream(ctx, req)
		if err != nil {
			metrics.ChatRequests.WithLabelValues(model, "stream", "error").Inc()
			writeFrame(ctx, conn, types.FrameError, types.ErrorPayload{Error: err.Error()})
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}

		for chunk := range s.Chunks() {
			if err := writeFrame(ctx, conn, types.FrameChunk, types.ChunkPayload{Chunk: chunk}); err != nil {
				logging.AppLogger.Info("stream client went away", zap.String("session_id", req.SessionID), zap.Error(err))
				s.Cancel()
				for range s.Chunks() {
				}
				metrics.ChatRequests.WithLabelValues(model, "stream", "cancelled").Inc()
				return
			}
			metrics.StreamChunks.Inc()
		}

		if err := s.Err(); err != nil {
			metrics.ChatRequests.WithLabelValues(model, "stream", "error").Inc()
			logging.ErrorLogger.Error("stream failed", zap.String("session_id", req.SessionID), zap.Error(err))
			writeFrame(ctx, conn, types.FrameError, types.ErrorPayload{Error: err.Error()})
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		used := s.Model()
		if used == "" {
			used = fallback
		}
		metrics.ChatRequests.WithLabelValues(model, "stream", "ok").Inc()
		writeFrame(ctx, conn, types.FrameDone, types.DonePayload{UsedModel: used})
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, kind string, payload any) error {
	return wsjson.Write(ctx, conn, types.NewFrame(kind, payload))
}
