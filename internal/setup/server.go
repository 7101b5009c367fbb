package setup

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	// #nosec G108 -- pprof debugging is intentionally enabled only on localhost
	_ "net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// httpServer is a background HTTP server with its listener.
type httpServer struct {
	srv      *http.Server
	listener net.Listener
}

// startPprofServer serves the pprof handlers on localhost.
func startPprofServer(port int, logger *zap.Logger) (*httpServer, error) {
	return startHTTPServer(fmt.Sprintf("localhost:%d", port), http.DefaultServeMux, "pprof", logger)
}

// startMetricsServer serves the Prometheus registry on /metrics.
func startMetricsServer(addr string, logger *zap.Logger) (*httpServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return startHTTPServer(addr, mux, "metrics", logger)
}

func startHTTPServer(addr string, handler http.Handler, name string, logger *zap.Logger) (*httpServer, error) {
	// Create secure server with timeouts
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s listener: %w", name, err)
	}

	// Start server in background
	go func() {
		logger.Info("Starting HTTP server", zap.String("name", name), zap.String("address", listener.Addr().String()))
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.String("name", name), zap.Error(err))
		}
	}()

	return &httpServer{
		srv:      srv,
		listener: listener,
	}, nil
}
