package wsclient

import (
	"encoding/json"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"mikanlink/pkg/mikan"
	"mikanlink/pkg/xform"
)

// Request function names understood by the compositor.
const (
	fnConnect            = "connect"
	fnDisconnect         = "disconnect"
	fnAnchorList         = "getSpatialAnchorList"
	fnAnchorInfo         = "getSpatialAnchorInfo"
	fnVideoIntrinsics    = "getVideoSourceIntrinsics"
	fnVideoMode          = "getVideoSourceMode"
	fnVideoAttachment    = "getVideoSourceAttachment"
	fnAllocateBuffers    = "allocateRenderTargetBuffers"
	fnFreeBuffers        = "freeRenderTargetBuffers"
	fnPublishTexture     = "publishRenderTargetTexture"
	fnSendScriptMessage  = "sendScriptMessage"
	responseTypeResponse = "response"
)

type request struct {
	RequestID uint64 `json:"requestId,omitempty"`
	Function  string `json:"function"`
	Payload   any    `json:"payload,omitempty"`
}

// envelope is the superset of response and event frames. A frame with an
// eventType is an event; otherwise it must be a response.
type envelope struct {
	ResponseType string           `json:"responseType,omitempty"`
	RequestID    uint64           `json:"requestId,omitempty"`
	ResultCode   mikan.ResultCode `json:"resultCode"`
	EventType    string           `json:"eventType,omitempty"`
	Payload      json.RawMessage  `json:"payload,omitempty"`
}

// wireTransform carries rotation as x, y, z, w.
type wireTransform struct {
	Position [3]float64 `json:"position"`
	Rotation [4]float64 `json:"rotation"`
	Scale    [3]float64 `json:"scale"`
}

func fromWireTransform(w wireTransform) xform.Transform {
	return xform.Transform{
		Position: mgl64.Vec3(w.Position),
		Rotation: mgl64.Quat{W: w.Rotation[3], V: mgl64.Vec3{w.Rotation[0], w.Rotation[1], w.Rotation[2]}},
		Scale:    mgl64.Vec3(w.Scale),
	}
}

func toWireTransform(t xform.Transform) wireTransform {
	return wireTransform{
		Position: t.Position,
		Rotation: [4]float64{t.Rotation.V[0], t.Rotation.V[1], t.Rotation.V[2], t.Rotation.W},
		Scale:    t.Scale,
	}
}

type anchorListPayload struct {
	AnchorIDs []mikan.AnchorID `json:"spatial_anchor_id_list"`
}

type anchorIDPayload struct {
	AnchorID mikan.AnchorID `json:"anchor_id"`
}

type anchorInfoPayload struct {
	AnchorID  mikan.AnchorID `json:"anchor_id"`
	Name      string         `json:"anchor_name"`
	Transform wireTransform  `json:"world_transform"`
}

type newFramePayload struct {
	Frame  uint64           `json:"frame"`
	Camera mikan.CameraPose `json:"camera"`
}

type devicePosePayload struct {
	DeviceID  int32      `json:"device_id"`
	Frame     uint64     `json:"frame"`
	Transform mgl64.Mat4 `json:"transform"`
}

type anchorPosePayload struct {
	AnchorID  mikan.AnchorID `json:"anchor_id"`
	Transform wireTransform  `json:"transform"`
}

type scriptMessagePayload struct {
	Message string `json:"message"`
}

type publishPayload struct {
	Handle uint64 `json:"handle"`
	Frame  uint64 `json:"frame"`
}

// decodeEvent turns an event frame into its typed payload.
func decodeEvent(name string, payload json.RawMessage) (mikan.Event, error) {
	kind, ok := mikan.ParseEventKind(name)
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", name)
	}

	switch kind {
	case mikan.EventConnected:
		return mikan.ConnectedEvent{}, nil
	case mikan.EventDisconnected:
		return mikan.DisconnectedEvent{}, nil
	case mikan.EventVideoSourceOpened:
		return mikan.VideoSourceOpenedEvent{}, nil
	case mikan.EventVideoSourceClosed:
		return mikan.VideoSourceClosedEvent{}, nil
	case mikan.EventVideoSourceAttachmentChanged:
		return mikan.VideoSourceAttachmentChangedEvent{}, nil
	case mikan.EventVideoSourceIntrinsicsChanged:
		return mikan.VideoSourceIntrinsicsChangedEvent{}, nil
	case mikan.EventVideoSourceModeChanged:
		return mikan.VideoSourceModeChangedEvent{}, nil
	case mikan.EventVRDeviceListUpdated:
		return mikan.VRDeviceListUpdatedEvent{}, nil
	case mikan.EventAnchorListUpdated:
		return mikan.AnchorListUpdatedEvent{}, nil
	case mikan.EventVideoSourceNewFrame:
		var p newFramePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return mikan.VideoSourceNewFrameEvent{Frame: p.Frame, Camera: p.Camera}, nil
	case mikan.EventVRDevicePoseUpdated:
		var p devicePosePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return mikan.VRDevicePoseUpdatedEvent{DeviceID: p.DeviceID, Frame: p.Frame, Transform: p.Transform}, nil
	case mikan.EventAnchorPoseUpdated:
		var p anchorPosePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return mikan.AnchorPoseUpdatedEvent{AnchorID: p.AnchorID, Transform: fromWireTransform(p.Transform)}, nil
	case mikan.EventScriptMessagePosted:
		var p scriptMessagePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return mikan.ScriptMessagePostedEvent{Message: p.Message}, nil
	}
	return nil, fmt.Errorf("unhandled event type %q", name)
}
