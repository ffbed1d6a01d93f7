package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"mikanlink/pkg/version"
)

// Handlers groups the endpoint handlers mounted by NewServer.
type Handlers struct {
	Status   *StatusHandler
	Anchors  *AnchorHandler
	Settings *SettingsHandler
	Script   *ScriptHandler
}

// NewServer creates and configures the HTTP server.
// shutdown is invoked asynchronously by POST /api/shutdown.
func NewServer(addr string, h Handlers, shutdown func()) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      NewMux(h, shutdown),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewMux builds the route table.
func NewMux(h Handlers, shutdown func()) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.HandleFunc("GET /api/log/recent", handleRecentLog)

	if h.Status != nil {
		mux.Handle("GET /api/status", h.Status)
	}
	if h.Anchors != nil {
		mux.Handle("GET /api/anchors", h.Anchors)
	}
	if h.Settings != nil {
		mux.HandleFunc("/api/scene/settings", h.Settings.HandleSettings)
	}
	if h.Script != nil {
		mux.Handle("POST /api/script", h.Script)
		mux.HandleFunc("GET /api/script/messages", h.Script.HandleMessages)
	}

	if shutdown != nil {
		mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
			slog.Info("Graceful shutdown initiated via API")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("Shutting down...")); err != nil {
				slog.Error("Failed to write shutdown response", "error", err)
			}
			// Let the response flush before the server stops.
			go func() {
				time.Sleep(100 * time.Millisecond)
				shutdown()
			}()
		})
	}

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Server", version.UserAgent())
	if err := json.NewEncoder(w).Encode(map[string]string{"version": version.Version}); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
