package bridge

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"mikanlink/pkg/logging"
	"mikanlink/pkg/mikan"
	"mikanlink/pkg/tracker"
)

// DefaultReconnectInterval is the cooldown after a failed connect attempt.
const DefaultReconnectInterval = 1 * time.Second

// Options configures a Module.
type Options struct {
	ClientInfo        mikan.ClientInfo
	ReconnectInterval time.Duration
}

// Module maintains one logical connection to the compositor and dispatches
// its events. It is not safe for concurrent use: every method must be called
// from the host's tick goroutine.
type Module struct {
	client  mikan.Client
	info    mikan.ClientInfo
	backoff time.Duration
	tracker *tracker.Tracker
	logger  *slog.Logger

	listeners []Listener
	refs      map[Listener]int

	state    State
	cooldown time.Duration
}

// New creates a Module around an initialized client. A nil tracker gets a
// private one.
func New(client mikan.Client, opts Options, tr *tracker.Tracker) *Module {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if tr == nil {
		tr = tracker.New()
	}
	return &Module{
		client:  client,
		info:    opts.ClientInfo,
		backoff: opts.ReconnectInterval,
		tracker: tr,
		logger:  slog.Default().With("component", "bridge"),
		refs:    make(map[Listener]int),
		state:   StateDisconnected,
	}
}

// State returns the current connection state.
func (m *Module) State() State {
	return m.state
}

// IsConnected reports whether the bridge believes the link is up.
func (m *Module) IsConnected() bool {
	return m.state == StateConnected
}

// ListenerCount returns the number of distinct registered listeners.
func (m *Module) ListenerCount() int {
	return len(m.listeners)
}

// Register adds a listener. Registering the same listener again only bumps its
// reference count; it still receives each event once.
func (m *Module) Register(l Listener) {
	if m.refs[l] == 0 {
		m.listeners = append(m.listeners, l)
	}
	m.refs[l]++
}

// Unregister drops one reference to a listener. The listener is removed when
// its count reaches zero, and the connection is torn down when no listeners
// remain. Unknown listeners are ignored.
func (m *Module) Unregister(ctx context.Context, l Listener) {
	n, ok := m.refs[l]
	if !ok {
		return
	}
	if n > 1 {
		m.refs[l] = n - 1
		return
	}

	delete(m.refs, l)
	m.listeners = slices.DeleteFunc(m.listeners, func(x Listener) bool { return x == l })

	if len(m.listeners) == 0 {
		m.teardown(ctx)
	}
}

// Tick advances the bridge by dt. When connected it drains the event queue;
// otherwise it attempts a reconnect once the cooldown has elapsed and at least
// one listener is registered. Tick never blocks on an empty queue.
func (m *Module) Tick(ctx context.Context, dt time.Duration) {
	if m.state == StateConnected && !m.client.IsConnected() {
		m.logger.Info("Compositor link lost")
		m.markDisconnected(ctx, slices.Clone(m.listeners))
	}

	if m.state == StateConnected {
		m.drain(ctx)
		return
	}

	if len(m.listeners) == 0 {
		return
	}
	if m.cooldown > 0 {
		m.cooldown -= dt
		if m.cooldown > 0 {
			return
		}
	}
	m.connect(ctx)
}

// SendScriptMessage forwards a message to the compositor. Failures are logged
// and show up as a lost link on a later tick.
func (m *Module) SendScriptMessage(ctx context.Context, message string) error {
	if m.state != StateConnected {
		return mikan.ErrNotConnected
	}
	if err := m.client.SendScriptMessage(ctx, mikan.TruncateScriptMessage(message)); err != nil {
		m.logger.Warn("Failed to send script message", "error", err)
		return err
	}
	return nil
}

// Shutdown closes the connection and releases the client library.
func (m *Module) Shutdown(ctx context.Context) error {
	m.teardown(ctx)
	return m.client.Shutdown()
}

func (m *Module) connect(ctx context.Context) {
	logging.Trace(m.logger, "Attempting compositor connection")

	err := m.client.Connect(ctx, m.info)
	m.tracker.TrackConnect(err == nil)
	if err != nil {
		m.logger.Debug("Connection failed", "error", err, "retry_in", m.backoff)
		m.cooldown = m.backoff
		m.state = StateConnecting
		return
	}

	m.cooldown = 0
	m.state = StateConnected
	m.logger.Info("Compositor connected")

	for _, l := range slices.Clone(m.listeners) {
		l.OnConnected(ctx)
	}
}

func (m *Module) teardown(ctx context.Context) {
	wasConnected := m.state == StateConnected
	m.state = StateDisconnected
	m.cooldown = 0

	if m.client.IsConnected() {
		if err := m.client.Disconnect(ctx); err != nil {
			m.logger.Warn("Disconnect failed", "error", err)
		}
	}
	if wasConnected {
		m.tracker.TrackDisconnect()
		m.logger.Info("Compositor disconnected")
	}
}

func (m *Module) markDisconnected(ctx context.Context, targets []Listener) {
	if m.state != StateConnected {
		return
	}
	m.state = StateDisconnected
	m.cooldown = 0
	m.tracker.TrackDisconnect()
	for _, l := range targets {
		l.OnDisconnected(ctx)
	}
}

// drain polls until the queue is empty. The recipient set is fixed at the
// start of the tick.
func (m *Module) drain(ctx context.Context) {
	targets := slices.Clone(m.listeners)
	for m.state == StateConnected {
		ev, err := m.client.PollNextEvent()
		if err != nil {
			if !errors.Is(err, mikan.ErrNoEvent) {
				m.logger.Debug("Poll failed", "error", err)
			}
			return
		}
		m.dispatch(ctx, targets, ev)
	}
}

func (m *Module) dispatch(ctx context.Context, targets []Listener, ev mikan.Event) {
	m.tracker.TrackEvent(ev.Kind().String())

	switch e := ev.(type) {
	case mikan.ConnectedEvent:
		// Already announced when Connect succeeded.
		logging.Trace(m.logger, "Connected event from compositor")
	case mikan.DisconnectedEvent:
		m.logger.Info("Compositor announced disconnect")
		m.markDisconnected(ctx, targets)

	case mikan.VideoSourceOpenedEvent, mikan.VideoSourceModeChangedEvent, mikan.VideoSourceIntrinsicsChangedEvent:
		for _, l := range targets {
			l.OnCameraIntrinsicsChanged(ctx)
		}
	case mikan.VideoSourceNewFrameEvent:
		for _, l := range targets {
			l.OnNewVideoFrame(ctx, e.Frame, e.Camera)
		}
	case mikan.VideoSourceAttachmentChangedEvent:
		for _, l := range targets {
			l.OnCameraAttachmentChanged(ctx)
		}

	case mikan.AnchorPoseUpdatedEvent:
		for _, l := range targets {
			l.OnAnchorPoseChanged(ctx, e.AnchorID, e.Transform)
		}
	case mikan.AnchorListUpdatedEvent:
		for _, l := range targets {
			l.OnAnchorListChanged(ctx)
		}

	case mikan.ScriptMessagePostedEvent:
		for _, l := range targets {
			l.OnScriptMessage(ctx, e.Message)
		}

	default:
		// video source closed, VR device pose/list
		logging.Trace(m.logger, "Ignoring event", "kind", ev.Kind())
	}
}
