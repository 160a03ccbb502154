package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Morditux/luxsession"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newRouter exposes the demo application. Session routes run inside the
// manager middleware; /metrics does not open a session.
func newRouter(mgr *luxsession.Manager, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(mgr.Middleware)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			s := luxsession.FromContext(r.Context())
			visits := s.GetInt64("visits", 0) + 1
			s.SetInt64("visits", visits)
			fmt.Fprintf(w, "visit %d\n", visits)
		})

		r.Post("/logout", func(w http.ResponseWriter, r *http.Request) {
			mgr.Destroy(w, r, luxsession.FromContext(r.Context()))
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/regenerate", func(w http.ResponseWriter, r *http.Request) {
			s, err := mgr.Regenerate(w, r, luxsession.FromContext(r.Context()))
			if err != nil {
				logger.Error("failed to regenerate session", "err", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			fmt.Fprintf(w, "visit %d\n", s.GetInt64("visits", 0))
		})
	})

	return r
}
