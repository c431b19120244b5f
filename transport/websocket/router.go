package websocket

import (
	"chat-relay/contract"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type healthResponse struct {
	Status string `json:"status"`
	Online int    `json:"online"`
}

// NewRouter exposes the websocket endpoint and a liveness probe.
func NewRouter(handler *Handler, registry contract.IRegistry, log *slog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(log))
	r.Handle("/ws", handler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok", Online: registry.Count()})
	}).Methods(http.MethodGet)
	return r
}

// loggingMiddleware doesn't wrap the ResponseWriter, the websocket upgrade needs to hijack it.
func loggingMiddleware(log *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}
