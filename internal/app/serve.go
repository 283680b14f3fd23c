package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/vk/mergegate/internal/server"
)

// shutdownTimeout bounds graceful HTTP shutdown when the context ends.
const shutdownTimeout = 5 * time.Second

// serve runs the webhook/status server until the context is cancelled.
func (a *App) serve(ctx context.Context) error {
	srv := server.New(a.coord)
	httpServer := &http.Server{
		Addr:        a.config.ListenAddr,
		Handler:     srv.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("🩺 Server starting.", "address", a.config.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
			return
		}
		errChan <- nil
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Server shutdown failed.", "error", err)
		return err
	}
	a.logger.Debug("Server shut down gracefully.")
	return nil
}
