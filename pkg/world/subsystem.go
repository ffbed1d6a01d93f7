// Package world connects the bridge's event stream to a scene and keeps the
// compositor's shared render buffers in step with the video mode.
package world

import (
	"context"
	"fmt"
	"log/slog"

	"mikanlink/pkg/mikan"
	"mikanlink/pkg/scene"
	"mikanlink/pkg/xform"
)

// Client is the part of the compositor client the subsystem drives.
type Client interface {
	GetVideoSourceMode(ctx context.Context) (mikan.VideoSourceMode, error)
	AllocateRenderTargetBuffers(ctx context.Context, desc mikan.RenderTargetDescriptor) error
	FreeRenderTargetBuffers(ctx context.Context) error
}

// Messenger sends script messages. bridge.Module satisfies it.
type Messenger interface {
	SendScriptMessage(ctx context.Context, message string) error
}

// RenderCamera owns the local render target matching the shared buffers.
type RenderCamera interface {
	RecreateRenderTarget(desc mikan.RenderTargetDescriptor) error
	DisposeRenderTarget()
}

// Subsystem implements bridge.Listener. It is bound to at most one scene.
type Subsystem struct {
	client      Client
	messenger   Messenger
	graphicsAPI mikan.GraphicsAPI
	logger      *slog.Logger

	scene  *scene.Scene
	camera RenderCamera
	desc   *mikan.RenderTargetDescriptor

	connectedHooks    []func(ctx context.Context)
	disconnectedHooks []func(ctx context.Context)
	messageHooks      []func(ctx context.Context, message string)
}

// New creates a subsystem for the given graphics API.
func New(client Client, messenger Messenger, api mikan.GraphicsAPI) *Subsystem {
	return &Subsystem{
		client:      client,
		messenger:   messenger,
		graphicsAPI: api,
		logger:      slog.Default().With("component", "world"),
	}
}

// BindScene attaches the scene and its camera, replacing any previous binding.
func (w *Subsystem) BindScene(s *scene.Scene, camera RenderCamera) {
	if w.camera != nil && w.camera != camera {
		w.camera.DisposeRenderTarget()
	}
	w.scene = s
	w.camera = camera
}

// UnbindScene detaches the scene and releases the camera's target.
func (w *Subsystem) UnbindScene() {
	if w.camera != nil {
		w.camera.DisposeRenderTarget()
	}
	w.scene = nil
	w.camera = nil
}

// Scene returns the bound scene, or nil.
func (w *Subsystem) Scene() *scene.Scene { return w.scene }

// Descriptor returns the descriptor of the allocated shared buffers. ok is
// false when no buffers are allocated.
func (w *Subsystem) Descriptor() (mikan.RenderTargetDescriptor, bool) {
	if w.desc == nil {
		return mikan.RenderTargetDescriptor{}, false
	}
	return *w.desc, true
}

// OnConnectedHook registers fn to run after a connection is set up.
func (w *Subsystem) OnConnectedHook(fn func(ctx context.Context)) {
	w.connectedHooks = append(w.connectedHooks, fn)
}

// OnDisconnectedHook registers fn to run after the connection drops.
func (w *Subsystem) OnDisconnectedHook(fn func(ctx context.Context)) {
	w.disconnectedHooks = append(w.disconnectedHooks, fn)
}

// OnMessageHook registers fn to receive script messages from the compositor.
func (w *Subsystem) OnMessageHook(fn func(ctx context.Context, message string)) {
	w.messageHooks = append(w.messageHooks, fn)
}

// SendMessage sends a script message to the compositor.
func (w *Subsystem) SendMessage(ctx context.Context, message string) error {
	return w.messenger.SendScriptMessage(ctx, message)
}

// ReallocateRenderBuffers frees the current buffers, then allocates new ones
// for the current video mode and recreates the camera's target to match.
func (w *Subsystem) ReallocateRenderBuffers(ctx context.Context) error {
	w.FreeRenderBuffers(ctx)

	mode, err := w.client.GetVideoSourceMode(ctx)
	if err != nil {
		return fmt.Errorf("failed to get video mode: %w", err)
	}
	if mode.ResolutionX <= 0 || mode.ResolutionY <= 0 {
		return fmt.Errorf("invalid video mode %dx%d", mode.ResolutionX, mode.ResolutionY)
	}

	desc := mikan.RenderTargetDescriptor{
		Width:       uint32(mode.ResolutionX),
		Height:      uint32(mode.ResolutionY),
		ColorKey:    mikan.ColorKey{},
		ColorBuffer: mikan.ColorBufferBGRA32,
		DepthBuffer: mikan.DepthBufferNone,
		GraphicsAPI: w.graphicsAPI,
	}

	if err := w.client.AllocateRenderTargetBuffers(ctx, desc); err != nil {
		return fmt.Errorf("failed to allocate render buffers: %w", err)
	}

	if w.camera != nil {
		if err := w.camera.RecreateRenderTarget(desc); err != nil {
			if ferr := w.client.FreeRenderTargetBuffers(ctx); ferr != nil {
				w.logger.Debug("Failed to free render buffers", "error", ferr)
			}
			return fmt.Errorf("failed to create camera target: %w", err)
		}
	}

	w.desc = &desc
	w.logger.Info("Render buffers allocated", "width", desc.Width, "height", desc.Height, "mode", mode.Name)
	return nil
}

// FreeRenderBuffers releases the camera's target and the shared buffers.
func (w *Subsystem) FreeRenderBuffers(ctx context.Context) {
	if w.camera != nil {
		w.camera.DisposeRenderTarget()
	}
	if w.desc == nil {
		return
	}
	w.desc = nil
	if err := w.client.FreeRenderTargetBuffers(ctx); err != nil {
		w.logger.Debug("Failed to free render buffers", "error", err)
	}
}

// --- bridge.Listener ---

func (w *Subsystem) OnConnected(ctx context.Context) {
	if err := w.ReallocateRenderBuffers(ctx); err != nil {
		w.logger.Warn("Render buffers not allocated", "error", err)
	}
	if w.scene != nil {
		w.scene.HandleConnected(ctx)
	}
	for _, fn := range w.connectedHooks {
		fn(ctx)
	}
}

func (w *Subsystem) OnDisconnected(ctx context.Context) {
	w.FreeRenderBuffers(ctx)
	for _, fn := range w.disconnectedHooks {
		fn(ctx)
	}
}

func (w *Subsystem) OnAnchorListChanged(ctx context.Context) {
	if w.scene != nil {
		w.scene.HandleAnchorListChanged(ctx)
	}
}

func (w *Subsystem) OnAnchorPoseChanged(ctx context.Context, id mikan.AnchorID, t xform.Transform) {
	if w.scene != nil {
		w.scene.HandleAnchorPoseChanged(ctx, id, t)
	}
}

func (w *Subsystem) OnNewVideoFrame(ctx context.Context, frame uint64, camera mikan.CameraPose) {
	if w.scene != nil {
		w.scene.HandleNewVideoFrame(ctx, frame, camera)
	}
}

func (w *Subsystem) OnCameraIntrinsicsChanged(ctx context.Context) {
	if err := w.ReallocateRenderBuffers(ctx); err != nil {
		w.logger.Warn("Render buffers not allocated", "error", err)
	}
	if w.scene != nil {
		w.scene.HandleCameraIntrinsicsChanged(ctx)
	}
}

func (w *Subsystem) OnCameraAttachmentChanged(ctx context.Context) {
	if w.scene != nil {
		w.scene.HandleCameraAttachmentChanged(ctx)
	}
}

func (w *Subsystem) OnScriptMessage(ctx context.Context, message string) {
	for _, fn := range w.messageHooks {
		fn(ctx, message)
	}
}
