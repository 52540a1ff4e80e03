package routes

import (
	"time"

	"medmine/medmine/config"
	"medmine/medmine/controllers"
	"medmine/medmine/middlewares"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// APIRoutes is the /api/v1 surface.
func APIRoutes(ingestCtrl *controllers.IngestController, chatCtrl *controllers.ChatController, healthCtrl *controllers.HealthController, cfg config.Config) chi.Router {
	r := chi.NewRouter()
	r.Get("/health", healthCtrl.HealthCheck)
	r.Group(func(gr chi.Router) {
		gr.Use(middlewares.AuthMiddleware(cfg))
		watchRoutes(gr, ingestCtrl)
		gr.Group(func(timed chi.Router) {
			timed.Use(middleware.Timeout(5 * time.Minute))
			ingestRoutes(timed, ingestCtrl, cfg)
			chatRoutes(timed, chatCtrl)
		})
	})
	return r
}

func HealthRoutes(ctrl *controllers.HealthController) chi.Router {
	r := chi.NewRouter()
	r.Get("/", ctrl.HealthCheck)
	return r
}
