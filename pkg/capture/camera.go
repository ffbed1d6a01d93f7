// Package capture owns the scene camera, its off-screen render target and the
// hand-off of finished frames to the compositor.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"

	"mikanlink/pkg/mikan"
	"mikanlink/pkg/tracker"
	"mikanlink/pkg/xform"
)

// DefaultFOV is the horizontal field of view, in degrees, used until the
// compositor reports intrinsics.
const DefaultFOV = 90.0

// Publisher receives finished frames. mikan.Client satisfies it.
type Publisher interface {
	PublishRenderTargetTexture(handle uintptr, frame uint64) error
}

// View is what the renderer needs to draw one frame.
type View struct {
	Transform xform.Transform
	FOV       float64
}

// Renderer draws the scene into a render target.
type Renderer interface {
	Render(ctx context.Context, frame uint64, view View, rt *RenderTarget) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, frame uint64, view View, rt *RenderTarget) error

func (f RendererFunc) Render(ctx context.Context, frame uint64, view View, rt *RenderTarget) error {
	return f(ctx, frame, view, rt)
}

// Options configures a Camera.
type Options struct {
	PublishWorkers int
	Renderer       Renderer
}

// Camera mirrors the compositor's video source. Methods other than Close are
// called from the tick goroutine; only the publish step runs elsewhere.
type Camera struct {
	backend   Backend
	publisher Publisher
	renderer  Renderer
	pool      *ants.Pool
	tracker   *tracker.Tracker
	logger    *slog.Logger

	transform xform.Transform
	fov       float64
	target    *RenderTarget
	api       mikan.GraphicsAPI
	closed    bool
}

// NewCamera creates a camera with its publish pool. A nil tracker gets a
// private one.
func NewCamera(backend Backend, publisher Publisher, opts Options, tr *tracker.Tracker) (*Camera, error) {
	if opts.PublishWorkers <= 0 {
		opts.PublishWorkers = 1
	}
	if tr == nil {
		tr = tracker.New()
	}
	logger := slog.Default().With("component", "camera")

	pool, err := ants.NewPool(
		opts.PublishWorkers,
		ants.WithNonblocking(true), // the tick never waits on a publish
		ants.WithPreAlloc(true),
		ants.WithPanicHandler(func(p any) {
			logger.Error("Publish worker panicked", "panic", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create publish pool: %w", err)
	}

	return &Camera{
		backend:   backend,
		publisher: publisher,
		renderer:  opts.Renderer,
		pool:      pool,
		tracker:   tr,
		logger:    logger,
		transform: xform.Identity(),
		fov:       DefaultFOV,
	}, nil
}

// Transform returns the camera's scene-space transform.
func (c *Camera) Transform() xform.Transform { return c.transform }

// SetTransform places the camera in the scene.
func (c *Camera) SetTransform(t xform.Transform) { c.transform = t }

// FOV returns the horizontal field of view in degrees.
func (c *Camera) FOV() float64 { return c.fov }

// Target returns the current render target, or nil.
func (c *Camera) Target() *RenderTarget { return c.target }

// HandleIntrinsics adopts the video source's horizontal field of view.
func (c *Camera) HandleIntrinsics(intr mikan.VideoSourceIntrinsics) {
	if intr.Mono.HFOV <= 0 {
		c.logger.Warn("Ignoring non-positive field of view", "hfov", intr.Mono.HFOV)
		return
	}
	c.fov = intr.Mono.HFOV
}

// RecreateRenderTarget replaces the render target with one matching desc.
// Only BGRA32 colour buffers are supported; anything else is a programming
// error and panics.
func (c *Camera) RecreateRenderTarget(desc mikan.RenderTargetDescriptor) error {
	c.DisposeRenderTarget()

	if desc.ColorBuffer != mikan.ColorBufferBGRA32 {
		panic(fmt.Sprintf("capture: unsupported colour buffer %s, want %s", desc.ColorBuffer, mikan.ColorBufferBGRA32))
	}

	rt, err := c.backend.CreateRenderTarget(desc)
	if err != nil {
		return fmt.Errorf("failed to create render target: %w", err)
	}
	c.target = rt
	c.api = desc.GraphicsAPI
	c.logger.Debug("Render target created", "width", rt.Width, "height", rt.Height, "handle", rt.Handle)
	return nil
}

// DisposeRenderTarget releases the render target, if any.
func (c *Camera) DisposeRenderTarget() {
	if c.target == nil {
		return
	}
	c.backend.ReleaseRenderTarget(c.target)
	c.target = nil
}

// CaptureFrame renders the current view and hands the target's handle to the
// publish pool. It returns once the hand-off is queued.
func (c *Camera) CaptureFrame(ctx context.Context, frame uint64) {
	if c.target == nil {
		return
	}

	if c.renderer != nil {
		view := View{Transform: c.transform, FOV: c.fov}
		if err := c.renderer.Render(ctx, frame, view, c.target); err != nil {
			c.logger.Warn("Render failed", "frame", frame, "error", err)
			return
		}
	}

	if !c.api.SupportsTexturePublish() {
		c.logger.Debug("Graphics API cannot publish textures", "api", c.api)
		c.tracker.TrackPublish(false)
		return
	}

	handle := c.target.Handle
	if handle == 0 {
		c.logger.Warn("Render target has no native handle, skipping frame", "frame", frame)
		c.tracker.TrackPublish(false)
		return
	}

	err := c.pool.Submit(func() {
		if err := c.publisher.PublishRenderTargetTexture(handle, frame); err != nil {
			c.logger.Debug("Publish failed", "frame", frame, "error", err)
			c.tracker.TrackPublish(false)
			return
		}
		c.tracker.TrackPublish(true)
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			c.logger.Debug("Publish workers busy, dropping frame", "frame", frame)
		} else {
			c.logger.Warn("Failed to queue publish", "frame", frame, "error", err)
		}
		c.tracker.TrackPublish(false)
	}
}

// Close releases the render target and waits briefly for in-flight publishes.
func (c *Camera) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.DisposeRenderTarget()
	if err := c.pool.ReleaseTimeout(2 * time.Second); err != nil {
		c.logger.Warn("Publish pool did not drain", "error", err)
	}
}
