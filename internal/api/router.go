package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(app *App, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(app))
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/games", app.CreateGameHandler)
		r.Get("/games", app.ListGamesHandler)
		r.Route("/games/{gameID}", func(r chi.Router) {
			r.Post("/captures", app.CreateCaptureHandler)
			r.Get("/captures", app.ListCapturesHandler)
			r.Post("/retry", app.RetryHandler)
			r.Post("/compilation", app.CompilationHandler)
		})
		r.Get("/captures/{id}/video", app.VideoHandler)
		r.Get("/captures/{id}/thumbnail", app.ThumbnailHandler)
		r.Delete("/captures/{id}", app.DeleteCaptureHandler)
		r.Get("/storage/stats", app.StorageStatsHandler)
	})

	return r
}

func requestLogger(app *App) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			app.Logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
