package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const Path = "/metrics"

// Handler serves everything registered on reg.
func Handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry:          reg,
		EnableOpenMetrics: true,
	}))
	return mux
}

// Serve starts the metrics listener in the background. The caller shuts it
// down with Shutdown on the returned server.
func Serve(addr string, reg *prometheus.Registry, log zerolog.Logger) *http.Server {
	srv := &http.Server{
		Addr:    addr,
		Handler: Handler(reg),
	}
	go func() {
		log.Info().Str("address", addr).Str("path", Path).Msg("starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	return srv
}
