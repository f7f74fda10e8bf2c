package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
)

// NewRouter exposes the hub over HTTP. Websocket upgrades are accepted on /ws and on / when the request carries an
// Upgrade header. GET /state returns the current snapshot. When staticDir is set, remaining paths are served from it.
func NewRouter(h *Hub, staticDir string, logger *slog.Logger) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			logger.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})

	r.Methods(http.MethodGet).Path("/ws").Handler(h)
	r.Methods(http.MethodGet).Path("/").HeadersRegexp("Upgrade", "(?i)^websocket$").Handler(h)
	r.Methods(http.MethodGet).Path("/state").HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(writer).Encode(h.Snapshot()); err != nil {
			logger.Error("failed to write out", "err", err)
		}
	})
	if staticDir != "" {
		r.Methods(http.MethodGet, http.MethodHead).PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	}
	return r
}
