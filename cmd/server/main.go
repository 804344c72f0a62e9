package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/kubilitics/kubilitics-knative/internal/api/middleware"
	"github.com/kubilitics/kubilitics-knative/internal/api/rest"
	"github.com/kubilitics/kubilitics-knative/internal/api/websocket"
	"github.com/kubilitics/kubilitics-knative/internal/config"
	"github.com/kubilitics/kubilitics-knative/internal/k8s"
	"github.com/kubilitics/kubilitics-knative/internal/models"
	"github.com/kubilitics/kubilitics-knative/internal/pkg/logger"
	"github.com/kubilitics/kubilitics-knative/internal/pkg/topologycache"
	"github.com/kubilitics/kubilitics-knative/internal/pkg/tracing"
	"github.com/kubilitics/kubilitics-knative/internal/service"
	"github.com/kubilitics/kubilitics-knative/internal/topology"
)

func main() {
	if err := run(); err != nil {
		logger.StdLogger().Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(os.Stderr, cfg.LogLevel)
	slog.SetDefault(log)

	if cfg.TracingEndpoint != "" {
		shutdownTracing, err := tracing.Init("kubilitics-knative", cfg.TracingEndpoint, cfg.TracingSamplingRate)
		if err != nil {
			log.Warn("tracing disabled", "error", err)
		} else {
			defer shutdownTracing()
		}
	}

	client, err := k8s.NewClient(cfg.KubeconfigPath, cfg.KubeContext)
	if err != nil {
		return err
	}
	client.SetTimeout(time.Duration(cfg.K8sTimeoutSec) * time.Second)
	if cfg.K8sRateLimitPerSec > 0 {
		burst := cfg.K8sRateLimitBurst
		if burst <= 0 {
			burst = int(cfg.K8sRateLimitPerSec)
		}
		client.SetLimiter(rate.NewLimiter(rate.Limit(cfg.K8sRateLimitPerSec), max(burst, 1)))
	}

	registry := topology.NewRegistry()
	if cfg.DiscoverKinds {
		if n, err := client.DiscoverKinds(ctx, registry); err != nil {
			log.Warn("kind discovery failed; using built-in kinds", "error", err)
		} else {
			log.Info("kinds discovered", "count", n)
		}
	}

	builder := topology.NewBuilder(registry, topology.WithLogger(log))
	cache := topologycache.New(cfg.TopologyCacheSize, time.Duration(cfg.TopologyCacheTTLSec)*time.Second)
	svc := service.NewTopologyService(k8s.NewCollector(client, registry, log), client, builder, cache, cfg.KubeContext, log)

	hub := websocket.NewHub(ctx)
	go hub.Run()
	defer hub.Stop()
	snapshot := func(ctx context.Context, namespace string) (*models.Model, error) {
		return svc.GetTopology(ctx, namespace, models.DomainAll)
	}

	if cfg.WatchEnabled {
		onChange := func(namespace string) {
			svc.Invalidate(namespace)
			if !hub.HasSubscribers(namespace) {
				return
			}
			model, err := snapshot(ctx, namespace)
			if err != nil {
				log.Warn("topology refresh failed", "namespace", namespace, "error", err)
			}
			if err := hub.Publish(namespace, model); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("topology publish failed", "namespace", namespace, "error", err)
			}
		}
		watcher := k8s.NewWatcher(client.Dynamic,
			time.Duration(cfg.WatchResyncSec)*time.Second,
			time.Duration(cfg.WatchDebounceMs)*time.Millisecond,
			onChange, log)
		if err := watcher.Start(ctx, registry); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
	}

	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.Tracing, middleware.StructuredLog(log))
	rest.SetupRoutes(router, rest.NewHandler(svc))
	router.HandleFunc("/ws/topology", websocket.NewHandler(hub, snapshot, cfg.AllowedOrigins, log).ServeWS).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, middleware.TraceIDHeader},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr, "context", cfg.KubeContext)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
