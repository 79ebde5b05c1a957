package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthCheckFunc reports whether one dependency is reachable.
type HealthCheckFunc func(ctx context.Context) error

type HealthController struct {
	checks map[string]HealthCheckFunc
}

func NewHealthController() *HealthController {
	return &HealthController{checks: map[string]HealthCheckFunc{}}
}

func (h *HealthController) Register(name string, check HealthCheckFunc) {
	h.checks[name] = check
}

func (h *HealthController) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body[name] = err.Error()
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
