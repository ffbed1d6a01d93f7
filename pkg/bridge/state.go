// Package bridge owns the single connection to the compositor. Each host tick
// it reconnects with a cooldown or drains the event queue, fanning every event
// out to the registered listeners in arrival order.
package bridge

import (
	"context"

	"mikanlink/pkg/mikan"
	"mikanlink/pkg/xform"
)

// State represents the connection state of the bridge.
type State string

const (
	// StateDisconnected indicates no connection and no pending retry.
	StateDisconnected State = "disconnected"
	// StateConnecting indicates a failed attempt and a running cooldown.
	StateConnecting State = "connecting"
	// StateConnected indicates an open connection.
	StateConnected State = "connected"
)

// Listener receives routed compositor events. Payload interpretation is the
// listener's job; transforms arrive in external space.
//
// Listener values are used as map keys, so implementations must be
// comparable (pointer receivers in practice).
type Listener interface {
	OnConnected(ctx context.Context)
	OnDisconnected(ctx context.Context)
	OnAnchorListChanged(ctx context.Context)
	OnAnchorPoseChanged(ctx context.Context, id mikan.AnchorID, t xform.Transform)
	OnNewVideoFrame(ctx context.Context, frame uint64, camera mikan.CameraPose)
	OnCameraIntrinsicsChanged(ctx context.Context)
	OnCameraAttachmentChanged(ctx context.Context)
	OnScriptMessage(ctx context.Context, message string)
}
