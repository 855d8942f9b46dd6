package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"navsync/internal/platform/logger"
	"navsync/internal/platform/metrics"
	"navsync/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the session server",
		Long: `Starts the HTTP server that hosts page sessions.

Configuration comes from the environment (or a .env file) and the media
file named by MEDIA_CONFIG.`,
		Example: `  # Start on the port from PORT (default 8080)
  navsync serve

  # Start on a custom port
  navsync serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(port)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), s)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides PORT)")

	return cmd
}

func serve(ctx context.Context, s settings) error {
	log := logger.New(s.LogLevel, s.LogFormat)

	repo := session.NewInMemoryRepository()
	met := metrics.New()
	svc := session.NewService(repo, s.Session, log, met)
	h := session.NewHandler(svc, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(repo.ActiveSessionCount()) }).ServeHTTP(w, r)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	h.Routes(r)

	addr := ":" + s.Port
	srv := &http.Server{Addr: addr, Handler: r}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	log.Info("server starting",
		"port", s.Port,
		"base_url", s.Session.Playback.Base.String(),
		"media_config", s.MediaPath,
		"allowed_origins", s.Session.AllowedOrigins,
		"log_level", s.LogLevel,
	)

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error("server error", "error", err)
		return err
	}

	log.Info("shutdown signal received, ending sessions")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	svc.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped")
	return nil
}
