package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"

	"mikanlink/pkg/config"
)

// Runner executes fn on the goroutine that owns scene state.
type Runner interface {
	Do(ctx context.Context, fn func(ctx context.Context)) error
}

// SceneControl is the part of the scene the settings endpoint changes.
type SceneControl interface {
	SetOriginAnchorName(name string)
	SetSceneScale(v float64)
	OriginAnchorName() string
	SceneScale() float64
}

// SettingsHandler reads and updates the runtime scene settings.
type SettingsHandler struct {
	cfgProv config.Provider
	runner  Runner
	scene   SceneControl
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(cfg config.Provider, runner Runner, scene SceneControl) *SettingsHandler {
	return &SettingsHandler{cfgProv: cfg, runner: runner, scene: scene}
}

// SettingsResponse is the persisted scene configuration.
type SettingsResponse struct {
	OriginAnchor  string  `json:"origin_anchor"`
	Scale         float64 `json:"scale"`
	MetersToUnits float64 `json:"meters_to_units"`
	Provider      string  `json:"provider"`
}

// SettingsRequest is a partial update; nil fields are left unchanged.
type SettingsRequest struct {
	OriginAnchor *string  `json:"origin_anchor,omitempty"`
	Scale        *float64 `json:"scale,omitempty"`
}

// HandleSettings dispatches GET and PUT, answering CORS preflight.
func (h *SettingsHandler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		h.writeSettings(w, r.Context())
	case http.MethodPut:
		h.handlePut(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) handlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	var req SettingsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Scale != nil && (math.IsNaN(*req.Scale) || *req.Scale <= 0) {
		http.Error(w, "scale must be positive", http.StatusBadRequest)
		return
	}

	if req.OriginAnchor != nil {
		if err := h.cfgProv.SetOriginAnchorName(ctx, *req.OriginAnchor); err != nil {
			slog.Error("Failed to persist origin anchor", "error", err)
			http.Error(w, "Failed to save settings", http.StatusInternalServerError)
			return
		}
	}
	if req.Scale != nil {
		if err := h.cfgProv.SetSceneScale(ctx, *req.Scale); err != nil {
			slog.Error("Failed to persist scene scale", "error", err)
			http.Error(w, "Failed to save settings", http.StatusInternalServerError)
			return
		}
	}

	if h.scene != nil {
		err := h.runner.Do(ctx, func(context.Context) {
			if req.OriginAnchor != nil {
				h.scene.SetOriginAnchorName(*req.OriginAnchor)
			}
			if req.Scale != nil {
				h.scene.SetSceneScale(*req.Scale)
			}
		})
		if err != nil {
			slog.Error("Failed to apply scene settings", "error", err)
			http.Error(w, "Scene is not running", http.StatusServiceUnavailable)
			return
		}
	}

	slog.Info("Scene settings updated", "origin_anchor", h.cfgProv.OriginAnchorName(ctx), "scale", h.cfgProv.SceneScale(ctx))
	h.writeSettings(w, ctx)
}

func (h *SettingsHandler) writeSettings(w http.ResponseWriter, ctx context.Context) {
	resp := SettingsResponse{
		OriginAnchor:  h.cfgProv.OriginAnchorName(ctx),
		Scale:         h.cfgProv.SceneScale(ctx),
		MetersToUnits: h.cfgProv.MetersToUnits(ctx),
		Provider:      h.cfgProv.MikanProvider(ctx),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode settings response", "error", err)
	}
}
