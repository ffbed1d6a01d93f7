package mikan

import (
	"github.com/go-gl/mathgl/mgl64"

	"mikanlink/pkg/xform"
)

// AnchorID identifies a spatial anchor for the lifetime of a connection.
type AnchorID int32

// InvalidAnchorID marks an unbound anchor.
const InvalidAnchorID AnchorID = -1

// SpatialAnchorInfo is one anchor as reported by the compositor. Transform is
// in external space.
type SpatialAnchorInfo struct {
	ID        AnchorID        `json:"anchor_id"`
	Name      string          `json:"anchor_name"`
	Transform xform.Transform `json:"world_transform"`
}

// VideoSourceMode describes the active capture mode of the video source.
type VideoSourceMode struct {
	Name        string  `json:"video_mode_name"`
	ResolutionX int     `json:"resolution_x"`
	ResolutionY int     `json:"resolution_y"`
	FrameRate   float64 `json:"frame_rate"`
}

// MonoIntrinsics are the pinhole parameters of a single camera.
type MonoIntrinsics struct {
	PixelWidth  float64 `json:"pixel_width"`
	PixelHeight float64 `json:"pixel_height"`
	HFOV        float64 `json:"hfov"` // degrees
	VFOV        float64 `json:"vfov"` // degrees
	ZNear       float64 `json:"znear"`
	ZFar        float64 `json:"zfar"`
}

// VideoSourceIntrinsics wraps the intrinsics of the video source.
type VideoSourceIntrinsics struct {
	Mono MonoIntrinsics `json:"mono"`
}

// VideoSourceAttachment describes which tracked device the camera is mounted on.
type VideoSourceAttachment struct {
	AttachedDeviceID int32      `json:"attached_vr_device_id"`
	CameraOffset     mgl64.Mat4 `json:"vr_device_offset_xform"`
}

// CameraPose is the video camera pose for one frame, in external space.
type CameraPose struct {
	Position mgl64.Vec3 `json:"camera_position"`
	Forward  mgl64.Vec3 `json:"camera_forward"`
	Up       mgl64.Vec3 `json:"camera_up"`
}

// ColorBufferType is the pixel layout of a shared render target.
type ColorBufferType int

const (
	ColorBufferNone ColorBufferType = iota
	ColorBufferRGB24
	ColorBufferRGBA32
	ColorBufferBGRA32
)

func (c ColorBufferType) String() string {
	switch c {
	case ColorBufferNone:
		return "none"
	case ColorBufferRGB24:
		return "rgb24"
	case ColorBufferRGBA32:
		return "rgba32"
	case ColorBufferBGRA32:
		return "bgra32"
	default:
		return "unknown"
	}
}

// DepthBufferType is the depth layout of a shared render target.
type DepthBufferType int

const (
	DepthBufferNone DepthBufferType = iota
	DepthBufferFloatDevice
	DepthBufferFloatScene
	DepthBufferPackDepthRGBA
)

// GraphicsAPI identifies the client's rendering backend.
type GraphicsAPI int

const (
	GraphicsUnknown GraphicsAPI = iota
	GraphicsDirect3D9
	GraphicsDirect3D11
	GraphicsDirect3D12
	GraphicsOpenGL
	GraphicsMetal
	GraphicsVulkan
)

var graphicsNames = map[GraphicsAPI]string{
	GraphicsUnknown:    "unknown",
	GraphicsDirect3D9:  "d3d9",
	GraphicsDirect3D11: "d3d11",
	GraphicsDirect3D12: "d3d12",
	GraphicsOpenGL:     "opengl",
	GraphicsMetal:      "metal",
	GraphicsVulkan:     "vulkan",
}

func (g GraphicsAPI) String() string {
	if name, ok := graphicsNames[g]; ok {
		return name
	}
	return "unknown"
}

// ParseGraphicsAPI maps a backend name ("d3d11", "opengl", ...) to its id.
// Unrecognised names map to GraphicsUnknown.
func ParseGraphicsAPI(name string) GraphicsAPI {
	for api, n := range graphicsNames {
		if n == name {
			return api
		}
	}
	return GraphicsUnknown
}

// SupportsTexturePublish reports whether frames on this backend can be shared
// by native texture handle.
func (g GraphicsAPI) SupportsTexturePublish() bool {
	switch g {
	case GraphicsDirect3D9, GraphicsDirect3D11, GraphicsDirect3D12, GraphicsOpenGL:
		return true
	default:
		return false
	}
}

// ColorKey is the RGB colour treated as transparent by the compositor.
type ColorKey struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// RenderTargetDescriptor describes the shared buffers for one video mode.
type RenderTargetDescriptor struct {
	Width       uint32          `json:"width"`
	Height      uint32          `json:"height"`
	ColorKey    ColorKey        `json:"color_key"`
	ColorBuffer ColorBufferType `json:"color_buffer_type"`
	DepthBuffer DepthBufferType `json:"depth_buffer_type"`
	GraphicsAPI GraphicsAPI     `json:"graphics_api"`
}

// Feature flags advertised in ClientInfo.
const (
	FeatureRenderTargetRGB24  uint64 = 1 << 0
	FeatureRenderTargetRGBA32 uint64 = 1 << 1
	FeatureRenderTargetBGRA32 uint64 = 1 << 2
)

// ClientInfo identifies this client to the compositor on connect.
type ClientInfo struct {
	ClientID           string      `json:"client_id"`
	EngineName         string      `json:"engine_name"`
	EngineVersion      string      `json:"engine_version"`
	ApplicationName    string      `json:"application_name"`
	ApplicationVersion string      `json:"application_version"`
	XRDeviceName       string      `json:"xr_device_name"`
	SDKVersion         string      `json:"mikan_sdk_version"`
	GraphicsAPI        GraphicsAPI `json:"graphics_api"`
	SupportedFeatures  uint64      `json:"supported_features"`
}
