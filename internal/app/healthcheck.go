package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// healthHandler reports liveness and the stage currently running.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK stage=%s\n", a.Stage())
}

// startHealthcheckServer runs the health check HTTP server in the background.
func (a *App) startHealthcheckServer(port int) {
	a.logger.Debug("Configuring health check server.")
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux}

	a.mu.Lock()
	a.httpServer = srv
	a.mu.Unlock()

	go func() {
		a.logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
}

func (a *App) closeHealthcheckServer() {
	a.mu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.mu.Unlock()

	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Error("Health check server shutdown failed", "error", err)
		return
	}
	a.logger.Debug("Health check server shut down gracefully.")
}
