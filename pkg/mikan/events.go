package mikan

import (
	"github.com/go-gl/mathgl/mgl64"

	"mikanlink/pkg/xform"
)

// EventKind tags the payload carried by an Event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventVideoSourceOpened
	EventVideoSourceClosed
	EventVideoSourceNewFrame
	EventVideoSourceAttachmentChanged
	EventVideoSourceIntrinsicsChanged
	EventVideoSourceModeChanged
	EventVRDevicePoseUpdated
	EventVRDeviceListUpdated
	EventAnchorPoseUpdated
	EventAnchorListUpdated
	EventScriptMessagePosted
)

var eventKindNames = [...]string{
	EventConnected:                    "connected",
	EventDisconnected:                 "disconnected",
	EventVideoSourceOpened:            "videoSourceOpened",
	EventVideoSourceClosed:            "videoSourceClosed",
	EventVideoSourceNewFrame:          "videoSourceNewFrame",
	EventVideoSourceAttachmentChanged: "videoSourceAttachmentChanged",
	EventVideoSourceIntrinsicsChanged: "videoSourceIntrinsicsChanged",
	EventVideoSourceModeChanged:       "videoSourceModeChanged",
	EventVRDevicePoseUpdated:          "vrDevicePoseUpdated",
	EventVRDeviceListUpdated:          "vrDeviceListUpdated",
	EventAnchorPoseUpdated:            "anchorPoseUpdated",
	EventAnchorListUpdated:            "anchorListUpdated",
	EventScriptMessagePosted:          "scriptMessagePosted",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// ParseEventKind maps a wire name back to its kind.
func ParseEventKind(name string) (EventKind, bool) {
	for i, n := range eventKindNames {
		if n == name {
			return EventKind(i), true
		}
	}
	return 0, false
}

// Event is one entry from the compositor's event queue. Each kind has its own
// payload type; consumers switch on the concrete type.
type Event interface {
	Kind() EventKind
}

type (
	ConnectedEvent                    struct{}
	DisconnectedEvent                 struct{}
	VideoSourceOpenedEvent            struct{}
	VideoSourceClosedEvent            struct{}
	VideoSourceAttachmentChangedEvent struct{}
	VideoSourceIntrinsicsChangedEvent struct{}
	VideoSourceModeChangedEvent       struct{}
	VRDeviceListUpdatedEvent          struct{}
	AnchorListUpdatedEvent            struct{}
)

// VideoSourceNewFrameEvent announces a new camera frame and its pose.
type VideoSourceNewFrameEvent struct {
	Frame  uint64
	Camera CameraPose
}

// VRDevicePoseUpdatedEvent carries a tracked device pose in external space.
type VRDevicePoseUpdatedEvent struct {
	DeviceID  int32
	Frame     uint64
	Transform mgl64.Mat4
}

// AnchorPoseUpdatedEvent carries a single anchor's new external-space pose.
type AnchorPoseUpdatedEvent struct {
	AnchorID  AnchorID
	Transform xform.Transform
}

// ScriptMessagePostedEvent carries an opaque script message.
type ScriptMessagePostedEvent struct {
	Message string
}

func (ConnectedEvent) Kind() EventKind                    { return EventConnected }
func (DisconnectedEvent) Kind() EventKind                 { return EventDisconnected }
func (VideoSourceOpenedEvent) Kind() EventKind            { return EventVideoSourceOpened }
func (VideoSourceClosedEvent) Kind() EventKind            { return EventVideoSourceClosed }
func (VideoSourceNewFrameEvent) Kind() EventKind          { return EventVideoSourceNewFrame }
func (VideoSourceAttachmentChangedEvent) Kind() EventKind { return EventVideoSourceAttachmentChanged }
func (VideoSourceIntrinsicsChangedEvent) Kind() EventKind { return EventVideoSourceIntrinsicsChanged }
func (VideoSourceModeChangedEvent) Kind() EventKind       { return EventVideoSourceModeChanged }
func (VRDevicePoseUpdatedEvent) Kind() EventKind          { return EventVRDevicePoseUpdated }
func (VRDeviceListUpdatedEvent) Kind() EventKind          { return EventVRDeviceListUpdated }
func (AnchorPoseUpdatedEvent) Kind() EventKind            { return EventAnchorPoseUpdated }
func (AnchorListUpdatedEvent) Kind() EventKind            { return EventAnchorListUpdated }
func (ScriptMessagePostedEvent) Kind() EventKind          { return EventScriptMessagePosted }
