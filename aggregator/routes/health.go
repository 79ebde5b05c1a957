package routes

import (
	"aggregator/aggregator/controllers"

	"github.com/go-chi/chi/v5"
)

// HealthRoutes serves the aggregated dependency check at "/".
func HealthRoutes(ctrl *controllers.HealthController) chi.Router {
	r := chi.NewRouter()
	r.Get("/", ctrl.HealthCheck)
	r.Head("/", ctrl.HealthCheck)
	return r
}
