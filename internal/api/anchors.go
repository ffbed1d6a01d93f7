package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"mikanlink/pkg/store"
)

// SavedAnchorDTO is an anchor remembered from a previous anchor list.
type SavedAnchorDTO struct {
	AnchorDTO
	UpdatedAt time.Time `json:"updated_at"`
}

// AnchorsResponse lists the live anchor table and the persisted snapshots.
type AnchorsResponse struct {
	Live  []AnchorDTO      `json:"live"`
	Saved []SavedAnchorDTO `json:"saved"`
}

// AnchorHandler serves /api/anchors.
type AnchorHandler struct {
	status    *StatusHandler
	snapshots store.AnchorStore
}

// NewAnchorHandler creates a handler. snapshots may be nil.
func NewAnchorHandler(status *StatusHandler, snapshots store.AnchorStore) *AnchorHandler {
	return &AnchorHandler{status: status, snapshots: snapshots}
}

func (h *AnchorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, live := h.status.Snapshot()
	resp := AnchorsResponse{
		Live:  live,
		Saved: []SavedAnchorDTO{},
	}
	if resp.Live == nil {
		resp.Live = []AnchorDTO{}
	}

	if h.snapshots != nil {
		saved, err := h.snapshots.ListAnchors(r.Context())
		if err != nil {
			slog.Error("Failed to list anchor snapshots", "error", err)
			http.Error(w, "Failed to list anchor snapshots", http.StatusInternalServerError)
			return
		}
		for _, a := range saved {
			resp.Saved = append(resp.Saved, SavedAnchorDTO{
				AnchorDTO: AnchorDTO{ID: a.ID, Name: a.Name, Transform: toTransformDTO(a.Transform)},
				UpdatedAt: a.UpdatedAt,
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode anchors response", "error", err)
	}
}
