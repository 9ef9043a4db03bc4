package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/fieldsync/api/controllers"
	"github.com/angelmondragon/fieldsync/api/middleware"
	"github.com/angelmondragon/fieldsync/pkg/config"
	"github.com/angelmondragon/fieldsync/pkg/db"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

// NewRouter mounts the local agent API. metricsHandler may be nil when
// metrics are disabled.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	syncService controllers.SyncService,
	outboxService controllers.OutboxService,
	status controllers.StatusSources,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Get("/healthz", controllers.Healthz(cfg, dbP, logg))
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/captures", controllers.CreateCapture(syncService, logg))
		r.Post("/sync", controllers.TriggerSync(syncService, status.Online, logg))
		r.Get("/status", controllers.Status(status, logg))
		r.Route("/outbox", func(r chi.Router) {
			r.Get("/", controllers.ListOutbox(outboxService, logg))
			r.Get("/failed", controllers.ListFailedOutbox(outboxService, logg))
			r.Post("/{id}/requeue", controllers.RequeueOutboxEntry(outboxService, logg))
		})
	})

	return r
}
