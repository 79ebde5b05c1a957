package routes

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"aggregator/aggregator/controllers"
	"aggregator/aggregator/services/llm"
	httputils "aggregator/aggregator/utils/http"
	"aggregator/aggregator/utils/logging"

	"go.uber.org/zap"
)

// generic wrapper to reduce boilerplate
func handleJSON(handler func(r *http.Request) (any, int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, status, err := handler(r)
		if err != nil {
			if status >= http.StatusInternalServerError {
				logging.ErrorLogger.Error("request failed",
					zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
			}
			http.Error(w, err.Error(), status)
			return
		}
		if status == http.StatusNoContent {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(res)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadJSON
	}
	return nil
}

var errBadJSON = errors.New("invalid JSON body")

// statusFor maps controller and provider errors to HTTP status codes.
func statusFor(err error) int {
	var se *httputils.StatusError
	var netErr net.Error
	switch {
	case errors.Is(err, errBadJSON),
		errors.Is(err, controllers.ErrEmptyMessage),
		errors.Is(err, controllers.ErrMissingFields),
		errors.Is(err, controllers.ErrNoSessionID),
		errors.Is(err, controllers.ErrWeakPassword),
		errors.Is(err, controllers.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, controllers.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, controllers.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, controllers.ErrAdminExists):
		return http.StatusConflict
	case errors.Is(err, llm.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, llm.ErrNoAPIKey):
		return http.StatusServiceUnavailable
	case errors.As(err, &se), errors.As(err, &netErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
