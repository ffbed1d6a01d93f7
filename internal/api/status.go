package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"mikanlink/pkg/bridge"
	"mikanlink/pkg/mikan"
	"mikanlink/pkg/tracker"
	"mikanlink/pkg/world"
	"mikanlink/pkg/xform"
)

// TransformDTO is a transform with its rotation flattened to x, y, z, w.
type TransformDTO struct {
	Position [3]float64 `json:"position"`
	Rotation [4]float64 `json:"rotation"`
	Scale    [3]float64 `json:"scale"`
}

func toTransformDTO(t xform.Transform) TransformDTO {
	return TransformDTO{
		Position: t.Position,
		Rotation: [4]float64{t.Rotation.V[0], t.Rotation.V[1], t.Rotation.V[2], t.Rotation.W},
		Scale:    t.Scale,
	}
}

// RenderTargetDTO mirrors the allocated render target descriptor.
type RenderTargetDTO struct {
	Width       uint32 `json:"width"`
	Height      uint32 `json:"height"`
	ColorBuffer string `json:"color_buffer"`
	GraphicsAPI string `json:"graphics_api"`
}

// SceneDTO is the scene's origin and scale state.
type SceneDTO struct {
	Bound         bool         `json:"bound"`
	OriginAnchor  string       `json:"origin_anchor"`
	Scale         float64      `json:"scale"`
	MetersToUnits float64      `json:"meters_to_units"`
	AnchorCount   int          `json:"anchor_count"`
	MikanToScene  TransformDTO `json:"mikan_to_scene"`
}

// AnchorDTO is one live anchor in engine space.
type AnchorDTO struct {
	ID        mikan.AnchorID `json:"id"`
	Name      string         `json:"name"`
	Transform TransformDTO   `json:"transform"`
}

// Status is the snapshot served by /api/status.
type Status struct {
	State        string           `json:"state"`
	Listeners    int              `json:"listeners"`
	RenderTarget *RenderTargetDTO `json:"render_target,omitempty"`
	Scene        SceneDTO         `json:"scene"`
	Stats        tracker.Stats    `json:"stats"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// StatusHandler serves the last published status. Updates come from the tick
// goroutine; reads come from HTTP handlers.
type StatusHandler struct {
	mu      sync.RWMutex
	status  Status
	anchors []AnchorDTO
}

func NewStatusHandler() *StatusHandler {
	return &StatusHandler{status: Status{State: string(bridge.StateDisconnected)}}
}

// Update replaces the published snapshot.
func (h *StatusHandler) Update(st Status, anchors []AnchorDTO) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = st
	h.anchors = anchors
}

// Snapshot returns the published status and live anchors.
func (h *StatusHandler) Snapshot() (Status, []AnchorDTO) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status, h.anchors
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st, _ := h.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		slog.Error("Failed to encode status response", "error", err)
	}
}

// CollectStatus reads bridge, world and scene state. It must run on the tick
// goroutine.
func CollectStatus(m *bridge.Module, w *world.Subsystem, tr *tracker.Tracker) (Status, []AnchorDTO) {
	st := Status{
		State:     string(m.State()),
		Listeners: m.ListenerCount(),
		Stats:     tr.Snapshot(),
		UpdatedAt: time.Now(),
	}

	if desc, ok := w.Descriptor(); ok {
		st.RenderTarget = &RenderTargetDTO{
			Width:       desc.Width,
			Height:      desc.Height,
			ColorBuffer: desc.ColorBuffer.String(),
			GraphicsAPI: desc.GraphicsAPI.String(),
		}
	}

	s := w.Scene()
	if s == nil {
		return st, nil
	}

	live := s.Anchors()
	anchors := make([]AnchorDTO, 0, len(live))
	for _, a := range live {
		anchors = append(anchors, AnchorDTO{ID: a.ID, Name: a.Name, Transform: toTransformDTO(a.Transform)})
	}
	st.Scene = SceneDTO{
		Bound:         true,
		OriginAnchor:  s.OriginAnchorName(),
		Scale:         s.SceneScale(),
		MetersToUnits: s.MetersToUnits(),
		AnchorCount:   len(live),
		MikanToScene:  toTransformDTO(s.MikanToScene()),
	}
	return st, anchors
}
