// Package mockmikan is an in-process stand-in for the MikanXR compositor.
// Tests script it directly; the CLI's "mock" provider runs its frame
// generator to drive a scene without a compositor.
package mockmikan

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"mikanlink/pkg/mikan"
	"mikanlink/pkg/xform"
)

// Config holds the mock video source and frame generator settings.
type Config struct {
	ResolutionX int
	ResolutionY int
	FrameRate   float64
	HFOV        float64
	VFOV        float64
	// OrbitRadius and OrbitPeriod shape the generated camera path, in meters
	// and per revolution.
	OrbitRadius float64
	OrbitPeriod time.Duration
	OrbitHeight float64
}

// DefaultConfig returns a 1280x720 @ 30fps source orbiting at 2m.
func DefaultConfig() Config {
	return Config{
		ResolutionX: 1280,
		ResolutionY: 720,
		FrameRate:   30,
		HFOV:        60,
		VFOV:        34,
		OrbitRadius: 2,
		OrbitPeriod: 20 * time.Second,
		OrbitHeight: 1.5,
	}
}

// maxQueue bounds the event queue; the oldest events are dropped first.
const maxQueue = 1024

// PublishedFrame records one PublishRenderTargetTexture call.
type PublishedFrame struct {
	Handle uintptr
	Frame  uint64
}

// Client implements mikan.Client in memory.
type Client struct {
	mu sync.Mutex

	config      Config
	initialized bool
	connected   bool
	clientInfo  mikan.ClientInfo
	logFn       mikan.LogCallback

	connectFailures int
	connectCalls    int
	disconnectCalls int
	pollErr         error

	queue   []mikan.Event
	anchors map[mikan.AnchorID]mikan.SpatialAnchorInfo
	nextID  mikan.AnchorID

	mode       mikan.VideoSourceMode
	intrinsics mikan.VideoSourceIntrinsics
	attachment mikan.VideoSourceAttachment
	hasVideo   bool

	allocated *mikan.RenderTargetDescriptor
	published []PublishedFrame
	sent      []string
	frame     uint64
}

// NewClient creates a mock compositor with a video source configured from cfg.
func NewClient(cfg Config) *Client {
	return &Client{
		config:  cfg,
		anchors: make(map[mikan.AnchorID]mikan.SpatialAnchorInfo),
		mode: mikan.VideoSourceMode{
			Name:        "mock",
			ResolutionX: cfg.ResolutionX,
			ResolutionY: cfg.ResolutionY,
			FrameRate:   cfg.FrameRate,
		},
		intrinsics: mikan.VideoSourceIntrinsics{
			Mono: mikan.MonoIntrinsics{
				PixelWidth:  float64(cfg.ResolutionX),
				PixelHeight: float64(cfg.ResolutionY),
				HFOV:        cfg.HFOV,
				VFOV:        cfg.VFOV,
				ZNear:       0.1,
				ZFar:        100,
			},
		},
		attachment: mikan.VideoSourceAttachment{
			AttachedDeviceID: -1,
			CameraOffset:     mgl64.Ident4(),
		},
		hasVideo: true,
	}
}

// Initialize implements mikan.Client.
func (c *Client) Initialize(level mikan.LogLevel, logFn mikan.LogCallback) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = true
	c.logFn = logFn
	c.logLocked(mikan.LogInfo, "mock compositor initialized")
	return nil
}

// Shutdown implements mikan.Client.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = false
	c.connected = false
	c.queue = nil
	return nil
}

// Connect implements mikan.Client. Forced failures queued with
// FailNextConnects are consumed first. A successful connect starts from an
// empty queue.
func (c *Client) Connect(ctx context.Context, info mikan.ClientInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectCalls++

	if !c.initialized {
		return mikan.ErrUninitialized
	}
	if c.connectFailures > 0 {
		c.connectFailures--
		return mikan.ErrNotConnected
	}

	c.connected = true
	c.clientInfo = info
	c.queue = []mikan.Event{mikan.ConnectedEvent{}}
	c.logLocked(mikan.LogInfo, "client connected: "+info.ApplicationName)
	return nil
}

// Disconnect implements mikan.Client.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCalls++
	c.connected = false
	c.queue = nil
	c.allocated = nil
	return nil
}

// IsConnected implements mikan.Client.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// PollNextEvent implements mikan.Client.
func (c *Client) PollNextEvent() (mikan.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, mikan.ErrNotConnected
	}
	if c.pollErr != nil {
		return nil, c.pollErr
	}
	if len(c.queue) == 0 {
		return nil, mikan.ErrNoEvent
	}
	ev := c.queue[0]
	c.queue = c.queue[1:]
	return ev, nil
}

// GetSpatialAnchorList implements mikan.Client. Ids are returned in ascending
// order.
func (c *Client) GetSpatialAnchorList(ctx context.Context) ([]mikan.AnchorID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, mikan.ErrNotConnected
	}
	ids := make([]mikan.AnchorID, 0, len(c.anchors))
	for id := range c.anchors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// GetSpatialAnchorInfo implements mikan.Client.
func (c *Client) GetSpatialAnchorInfo(ctx context.Context, id mikan.AnchorID) (mikan.SpatialAnchorInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return mikan.SpatialAnchorInfo{}, mikan.ErrNotConnected
	}
	info, ok := c.anchors[id]
	if !ok {
		return mikan.SpatialAnchorInfo{}, mikan.ErrNotFound
	}
	return info, nil
}

// GetVideoSourceIntrinsics implements mikan.Client.
func (c *Client) GetVideoSourceIntrinsics(ctx context.Context) (mikan.VideoSourceIntrinsics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.videoReadyLocked(); err != nil {
		return mikan.VideoSourceIntrinsics{}, err
	}
	return c.intrinsics, nil
}

// GetVideoSourceMode implements mikan.Client.
func (c *Client) GetVideoSourceMode(ctx context.Context) (mikan.VideoSourceMode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.videoReadyLocked(); err != nil {
		return mikan.VideoSourceMode{}, err
	}
	return c.mode, nil
}

// GetVideoSourceAttachment implements mikan.Client.
func (c *Client) GetVideoSourceAttachment(ctx context.Context) (mikan.VideoSourceAttachment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.videoReadyLocked(); err != nil {
		return mikan.VideoSourceAttachment{}, err
	}
	return c.attachment, nil
}

// AllocateRenderTargetBuffers implements mikan.Client.
func (c *Client) AllocateRenderTargetBuffers(ctx context.Context, desc mikan.RenderTargetDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return mikan.ErrNotConnected
	}
	d := desc
	c.allocated = &d
	return nil
}

// FreeRenderTargetBuffers implements mikan.Client.
func (c *Client) FreeRenderTargetBuffers(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allocated = nil
	return nil
}

// PublishRenderTargetTexture implements mikan.Client.
func (c *Client) PublishRenderTargetTexture(handle uintptr, frame uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return mikan.ErrNotConnected
	}
	c.published = append(c.published, PublishedFrame{Handle: handle, Frame: frame})
	return nil
}

// SendScriptMessage implements mikan.Client.
func (c *Client) SendScriptMessage(ctx context.Context, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return mikan.ErrNotConnected
	}
	c.sent = append(c.sent, message)
	return nil
}

func (c *Client) videoReadyLocked() error {
	if !c.connected {
		return mikan.ErrNotConnected
	}
	if !c.hasVideo {
		return mikan.ErrNotFound
	}
	return nil
}

func (c *Client) logLocked(level mikan.LogLevel, msg string) {
	if c.logFn != nil {
		c.logFn(level, msg)
	}
}

func (c *Client) pushLocked(events ...mikan.Event) {
	if !c.connected {
		return
	}
	c.queue = append(c.queue, events...)
	if over := len(c.queue) - maxQueue; over > 0 {
		c.queue = c.queue[over:]
	}
}

// --- Scripting helpers ---

// FailNextConnects makes the next n Connect calls fail.
func (c *Client) FailNextConnects(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectFailures = n
}

// FailPolls makes PollNextEvent return err until cleared with nil.
func (c *Client) FailPolls(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pollErr = err
}

// DropLink simulates the compositor going away without a goodbye: the
// connection is marked closed and queued events are lost.
func (c *Client) DropLink() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.queue = nil
	c.allocated = nil
}

// Push appends events to the queue. Events pushed while disconnected are
// dropped, as the real compositor would.
func (c *Client) Push(events ...mikan.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushLocked(events...)
}

// AddAnchor registers an anchor and announces the new list.
func (c *Client) AddAnchor(name string, t xform.Transform) mikan.AnchorID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.anchors[id] = mikan.SpatialAnchorInfo{ID: id, Name: name, Transform: t}
	c.pushLocked(mikan.AnchorListUpdatedEvent{})
	return id
}

// MoveAnchor updates an anchor pose and announces it.
func (c *Client) MoveAnchor(id mikan.AnchorID, t xform.Transform) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.anchors[id]
	if !ok {
		return false
	}
	info.Transform = t
	c.anchors[id] = info
	c.pushLocked(mikan.AnchorPoseUpdatedEvent{AnchorID: id, Transform: t})
	return true
}

// RemoveAnchor deletes an anchor and announces the new list.
func (c *Client) RemoveAnchor(id mikan.AnchorID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.anchors, id)
	c.pushLocked(mikan.AnchorListUpdatedEvent{})
}

// SetVideoMode changes the video mode and announces it.
func (c *Client) SetVideoMode(mode mikan.VideoSourceMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	c.hasVideo = true
	c.pushLocked(mikan.VideoSourceModeChangedEvent{})
}

// SetIntrinsics changes the camera intrinsics and announces them.
func (c *Client) SetIntrinsics(intr mikan.VideoSourceIntrinsics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intrinsics = intr
	c.pushLocked(mikan.VideoSourceIntrinsicsChangedEvent{})
}

// CloseVideoSource removes the video source; mode queries fail afterwards.
func (c *Client) CloseVideoSource() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasVideo = false
	c.pushLocked(mikan.VideoSourceClosedEvent{})
}

// PostScriptMessage queues a script message from the compositor side.
func (c *Client) PostScriptMessage(msg string) {
	c.Push(mikan.ScriptMessagePostedEvent{Message: msg})
}

// ConnectCalls returns how many times Connect was called.
func (c *Client) ConnectCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectCalls
}

// DisconnectCalls returns how many times Disconnect was called.
func (c *Client) DisconnectCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectCalls
}

// ClientInfo returns the info passed to the last successful Connect.
func (c *Client) ClientInfo() mikan.ClientInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientInfo
}

// Allocated returns the currently allocated descriptor, if any.
func (c *Client) Allocated() (mikan.RenderTargetDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allocated == nil {
		return mikan.RenderTargetDescriptor{}, false
	}
	return *c.allocated, true
}

// Published returns a copy of every published frame so far.
func (c *Client) Published() []PublishedFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]PublishedFrame(nil), c.published...)
}

// SentMessages returns a copy of every script message received from clients.
func (c *Client) SentMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// Pending returns the number of queued events.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
