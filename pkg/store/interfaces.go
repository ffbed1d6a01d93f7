package store

import (
	"context"
	"time"

	"mikanlink/pkg/mikan"
	"mikanlink/pkg/xform"
)

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

// AnchorSnapshot is the last engine-space pose seen for a named anchor.
type AnchorSnapshot struct {
	Name      string          `json:"name"`
	ID        mikan.AnchorID  `json:"id"`
	Transform xform.Transform `json:"transform"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AnchorStore keeps the last known anchor table across runs.
type AnchorStore interface {
	SaveAnchors(ctx context.Context, anchors []AnchorSnapshot) error
	ListAnchors(ctx context.Context) ([]AnchorSnapshot, error)
}
