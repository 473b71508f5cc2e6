package tenders

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/tendering/core/logger"
)

// NewRouter returns the tender API mounted under /api.
func NewRouter(svc Service, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.Nop{}
	}
	h := &handler{svc: svc, log: log}
	router := chi.NewRouter()
	router.Use(Recoverer(log))
	router.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.ping)
		r.Route("/tenders", func(r chi.Router) {
			r.Post("/", h.create)
			r.Get("/", h.list)
			r.Route("/{tenderId}", func(r chi.Router) {
				r.Get("/", h.get)
				r.Post("/send", h.send)
				r.Post("/cancel", h.cancel)
				r.Post("/decision", h.decide)
				r.Put("/rules", h.reevaluate)
				r.Get("/ranking", h.ranking)
				r.Get("/decisions", h.decisions)
				r.Get("/bids", h.bids)
				r.Post("/bids", h.submitBid)
				r.Delete("/bids/{carrierId}", h.withdrawBid)
			})
		})
	})
	return router
}
