package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"podcast-listener/internal/backend"
	"podcast-listener/internal/platform/config"
	"podcast-listener/internal/platform/logger"
	"podcast-listener/internal/platform/metrics"
	"podcast-listener/internal/session"
	"podcast-listener/internal/transcript"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	backendURL := config.GetEnv("BACKEND_URL", "http://localhost:8000/api/v1")
	backendTimeout := config.GetEnvFloat("BACKEND_TIMEOUT_SECONDS", 30)
	duplicates := transcript.ParseDuplicatePolicy(config.GetEnv("DUPLICATE_CHUNKS", string(transcript.DuplicatesAppend)))
	eventBuffer := config.GetEnvInt("SESSION_EVENT_BUFFER", session.DefaultEventBuffer)
	metricsEnabled := config.GetEnvBool("METRICS_ENABLED", true)

	log := logger.New(logLevel, logFormat)
	var met *metrics.Metrics
	if metricsEnabled {
		met = metrics.New()
	}

	client := backend.NewClient(backendURL, time.Duration(backendTimeout*float64(time.Second)), log)
	repo := session.NewInMemoryRepository()
	svc := session.NewService(repo, client, session.Options{
		Duplicates:  duplicates,
		EventBuffer: eventBuffer,
		Logger:      log,
		Metrics:     met,
	})
	h := session.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	if met != nil {
		r.Use(metrics.RequestMiddleware(met))
	}
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if met != nil {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			met.Handler(func() { met.SetActiveSessions(svc.ActiveSessionCount()) }).ServeHTTP(w, r)
		})
	}
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting",
			"port", port,
			"backend_url", backendURL,
			"duplicate_chunks", string(duplicates),
			"log_level", logLevel,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining connections")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Sessions first so open websockets see a close frame before the server drops them.
		if err := svc.CloseAll(shutdownCtx); err != nil {
			log.Error("session shutdown error", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
