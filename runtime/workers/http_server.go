package workers

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// HTTPServerWorker serves HTTP until its context is canceled, then shuts down
// within shutdownTimeout.
type HTTPServerWorker struct {
	server          *http.Server
	shutdownTimeout time.Duration
	log             *slog.Logger
}

func NewHTTPServerWorker(server *http.Server, shutdownTimeout time.Duration, log *slog.Logger) *HTTPServerWorker {
	return &HTTPServerWorker{server: server, shutdownTimeout: shutdownTimeout, log: log}
}

func (w *HTTPServerWorker) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting HTTP server", "address", w.server.Addr, "at", time.Now().UTC())
		errChan <- w.server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer cancel()
	w.log.Info("Shutting down HTTP server")
	if err := w.server.Shutdown(shutdownCtx); err != nil {
		w.log.Warn("HTTP server shutdown incomplete", "error", err)
	}
	return nil
}
