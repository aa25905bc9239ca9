package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clipvox/internal/config"
	"clipvox/internal/transport/observer"
)

// Serve starts the metrics and observer listeners the config names and
// attaches a new observer to e. The returned func shuts both down.
func Serve(cfg config.File, e *Engine, logger *log.Logger) func() {
	var servers []*http.Server

	start := func(name, addr string, h http.Handler) {
		srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
		servers = append(servers, srv)
		go func() {
			logger.Printf("%s listening on %s", name, addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("%s: %v", name, err)
			}
		}()
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		start("metrics", cfg.MetricsAddr, mux)
	}
	if cfg.ObserverAddr != "" {
		obs := observer.NewServer(logger)
		e.Observer = obs
		start("observer", cfg.ObserverAddr, obs.Handler())
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(ctx)
		}
	}
}
