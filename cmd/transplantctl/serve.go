package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"transplantcore/docs/schema/openapi"
	"transplantcore/internal/adapters/waitlist"
	"transplantcore/internal/blob"
	"transplantcore/internal/core"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "Serve the waitlist HTTP API and Prometheus metrics",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "addr", Usage: "listen address (defaults to http.addr)"},
	},
	Action: func(c *cli.Context) error {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return err
		}
		return withEnvOptions(c, []core.ServiceOption{core.WithMetricsRecorder(metrics)}, func(e *env) error {
			reports, err := blob.Open(c.Context, e.cfg.Blob)
			if err != nil {
				return fmt.Errorf("open blob store: %w", err)
			}
			metrics.SetWaitlistLength(len(e.svc.Waitlist()))
			handler := waitlist.NewHandler(e.svc)
			handler.Reports = reports

			addr := c.String("addr")
			if addr == "" {
				addr = e.cfg.HTTP.Addr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           newServeMux(handler, reg),
				ReadHeaderTimeout: 5 * time.Second,
			}
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, srv, e.logger)
		})
	},
}

func newServeMux(api http.Handler, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/", api)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openapi.Spec())
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// serve runs srv until ctx is cancelled, then drains connections.
func serve(ctx context.Context, srv *http.Server, logger core.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
