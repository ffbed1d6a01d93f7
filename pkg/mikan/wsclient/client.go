// Package wsclient talks to a MikanXR compositor over a JSON WebSocket link.
package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mikanlink/pkg/mikan"
)

// Config holds the connection settings.
type Config struct {
	URL            string
	RequestTimeout time.Duration
	EventQueueSize int
}

const (
	defaultRequestTimeout = 2 * time.Second
	defaultEventQueueSize = 256
)

type response struct {
	code    mikan.ResultCode
	payload json.RawMessage
	err     error
}

// Client implements mikan.Client. Requests block until the matching response
// arrives; events are buffered by a single reader goroutine and drained with
// PollNextEvent.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	logFn       mikan.LogCallback
	logLevel    mikan.LogLevel
	conn        *websocket.Conn
	pending     map[uint64]chan response
	events      chan mikan.Event
	clientID    string

	writeMu sync.Mutex
	// connected is only written with mu held so it always agrees with conn.
	connected atomic.Bool
	nextID    atomic.Uint64
}

// New creates a client; Initialize must be called before Connect.
func New(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.EventQueueSize <= 0 {
		cfg.EventQueueSize = defaultEventQueueSize
	}
	return &Client{
		cfg:     cfg,
		logger:  slog.Default().With("component", "wsclient"),
		pending: make(map[uint64]chan response),
		events:  make(chan mikan.Event, cfg.EventQueueSize),
	}
}

// Initialize records the log sink. It does not touch the network.
func (c *Client) Initialize(level mikan.LogLevel, logFn mikan.LogCallback) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = true
	c.logLevel = level
	c.logFn = logFn
	return nil
}

// Shutdown closes any open connection and forgets the log sink.
func (c *Client) Shutdown() error {
	if c.IsConnected() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
		defer cancel()
		_ = c.Disconnect(ctx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = false
	c.logFn = nil
	return nil
}

// ClientID returns the id sent with the last connect request.
func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// Connect dials the compositor and performs the connect handshake.
func (c *Client) Connect(ctx context.Context, info mikan.ClientInfo) error {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return mikan.ErrUninitialized
	}
	c.mu.Unlock()

	if c.IsConnected() {
		c.closeConn()
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: dial %s: %v (status %d)", mikan.ErrNotConnected, c.cfg.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("%w: dial %s: %v", mikan.ErrNotConnected, c.cfg.URL, err)
	}

	if info.ClientID == "" {
		info.ClientID = uuid.New().String()
	}

	events := make(chan mikan.Event, c.cfg.EventQueueSize)
	c.mu.Lock()
	c.conn = conn
	c.events = events
	c.pending = make(map[uint64]chan response)
	c.clientID = info.ClientID
	c.mu.Unlock()

	go c.readLoop(conn, events)

	if err := c.call(ctx, fnConnect, info, nil); err != nil {
		c.closeConn()
		return fmt.Errorf("connect handshake: %w", err)
	}

	// The link may have dropped right after the handshake answer.
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("connect handshake: %w", mikan.ErrNotConnected)
	}
	c.connected.Store(true)
	c.mu.Unlock()

	c.log(mikan.LogInfo, fmt.Sprintf("connected to %s as %s", c.cfg.URL, info.ClientID))
	return nil
}

// Disconnect sends a best-effort disconnect request and closes the socket.
func (c *Client) Disconnect(ctx context.Context) error {
	if !c.IsConnected() {
		return mikan.ErrNotConnected
	}
	if err := c.call(ctx, fnDisconnect, nil, nil); err != nil {
		c.logger.Debug("Disconnect request failed", "error", err)
	}
	c.closeConn()
	c.log(mikan.LogInfo, "disconnected")
	return nil
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// PollNextEvent returns the oldest buffered event without blocking. Events
// received before a link loss are still delivered.
func (c *Client) PollNextEvent() (mikan.Event, error) {
	c.mu.Lock()
	events := c.events
	c.mu.Unlock()

	select {
	case ev := <-events:
		return ev, nil
	default:
	}
	if !c.IsConnected() {
		return nil, mikan.ErrNotConnected
	}
	return nil, mikan.ErrNoEvent
}

func (c *Client) GetSpatialAnchorList(ctx context.Context) ([]mikan.AnchorID, error) {
	var out anchorListPayload
	if err := c.call(ctx, fnAnchorList, nil, &out); err != nil {
		return nil, err
	}
	return out.AnchorIDs, nil
}

func (c *Client) GetSpatialAnchorInfo(ctx context.Context, id mikan.AnchorID) (mikan.SpatialAnchorInfo, error) {
	var out anchorInfoPayload
	if err := c.call(ctx, fnAnchorInfo, anchorIDPayload{AnchorID: id}, &out); err != nil {
		return mikan.SpatialAnchorInfo{}, err
	}
	return mikan.SpatialAnchorInfo{
		ID:        out.AnchorID,
		Name:      out.Name,
		Transform: fromWireTransform(out.Transform),
	}, nil
}

func (c *Client) GetVideoSourceIntrinsics(ctx context.Context) (mikan.VideoSourceIntrinsics, error) {
	var out mikan.VideoSourceIntrinsics
	err := c.call(ctx, fnVideoIntrinsics, nil, &out)
	return out, err
}

func (c *Client) GetVideoSourceMode(ctx context.Context) (mikan.VideoSourceMode, error) {
	var out mikan.VideoSourceMode
	err := c.call(ctx, fnVideoMode, nil, &out)
	return out, err
}

func (c *Client) GetVideoSourceAttachment(ctx context.Context) (mikan.VideoSourceAttachment, error) {
	var out mikan.VideoSourceAttachment
	err := c.call(ctx, fnVideoAttachment, nil, &out)
	return out, err
}

func (c *Client) AllocateRenderTargetBuffers(ctx context.Context, desc mikan.RenderTargetDescriptor) error {
	return c.call(ctx, fnAllocateBuffers, desc, nil)
}

func (c *Client) FreeRenderTargetBuffers(ctx context.Context) error {
	return c.call(ctx, fnFreeBuffers, nil, nil)
}

// PublishRenderTargetTexture is fire-and-forget: the compositor does not
// answer publish frames.
func (c *Client) PublishRenderTargetTexture(handle uintptr, frame uint64) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || !c.IsConnected() {
		return mikan.ErrNotConnected
	}
	return c.write(conn, request{
		Function: fnPublishTexture,
		Payload:  publishPayload{Handle: uint64(handle), Frame: frame},
	})
}

func (c *Client) SendScriptMessage(ctx context.Context, message string) error {
	return c.call(ctx, fnSendScriptMessage, scriptMessagePayload{Message: mikan.TruncateScriptMessage(message)}, nil)
}

// call sends one request and waits for its response. out, when non-nil,
// receives the decoded payload.
func (c *Client) call(ctx context.Context, fn string, payload, out any) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return mikan.ErrNotConnected
	}
	id := c.nextID.Add(1)
	respChan := make(chan response, 1)
	c.pending[id] = respChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(conn, request{RequestID: id, Function: fn, Payload: payload}); err != nil {
		return fmt.Errorf("%w: %s: %v", mikan.ErrNotConnected, fn, err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-respChan:
		if resp.err != nil {
			return resp.err
		}
		if err := resp.code.Err(); err != nil {
			return fmt.Errorf("%s: %w", fn, err)
		}
		if out != nil && len(resp.payload) > 0 {
			if err := json.Unmarshal(resp.payload, out); err != nil {
				return fmt.Errorf("%s: decode response: %w", fn, err)
			}
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%s: %w", fn, mikan.ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) write(conn *websocket.Conn, req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop owns conn's read side until it fails. events is the queue created
// for this connection; a later Connect installs a fresh one.
func (c *Client) readLoop(conn *websocket.Conn, events chan mikan.Event) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleLinkLoss(conn, err)
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("Dropping malformed frame", "error", err)
			continue
		}

		if env.EventType != "" {
			ev, err := decodeEvent(env.EventType, env.Payload)
			if err != nil {
				c.logger.Warn("Dropping event", "error", err)
				continue
			}
			c.enqueue(events, ev)
			continue
		}

		if env.ResponseType != responseTypeResponse {
			c.logger.Warn("Dropping frame with unknown type", "response_type", env.ResponseType)
			continue
		}

		c.mu.Lock()
		respChan, ok := c.pending[env.RequestID]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("Response for unknown request", "request_id", env.RequestID)
			continue
		}
		select {
		case respChan <- response{code: env.ResultCode, payload: env.Payload}:
		default:
		}
	}
}

// enqueue appends ev, dropping the oldest buffered event when full.
func (c *Client) enqueue(events chan mikan.Event, ev mikan.Event) {
	select {
	case events <- ev:
		return
	default:
	}

	select {
	case dropped := <-events:
		c.logger.Warn("Event queue full, dropping oldest", "dropped", dropped.Kind().String())
	default:
	}
	select {
	case events <- ev:
	default:
		c.logger.Warn("Event queue full, dropping event", "kind", ev.Kind().String())
	}
}

// handleLinkLoss fails all in-flight requests. It is a no-op when conn has
// already been replaced or closed locally.
func (c *Client) handleLinkLoss(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	pending := c.pending
	c.pending = make(map[uint64]chan response)
	wasConnected := c.connected.Swap(false)
	c.mu.Unlock()

	failPending(pending)
	_ = conn.Close()

	if wasConnected {
		c.logger.Warn("Compositor link lost", "error", err)
		c.log(mikan.LogWarning, "connection lost")
	}
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	pending := c.pending
	c.pending = make(map[uint64]chan response)
	c.connected.Store(false)
	c.mu.Unlock()

	failPending(pending)
	if conn == nil {
		return
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = conn.Close()
}

func failPending(pending map[uint64]chan response) {
	for _, ch := range pending {
		select {
		case ch <- response{err: mikan.ErrNotConnected}:
		default:
		}
	}
}

// log forwards a line to the registered callback when its level passes.
func (c *Client) log(level mikan.LogLevel, msg string) {
	c.mu.Lock()
	fn := c.logFn
	threshold := c.logLevel
	c.mu.Unlock()
	if fn == nil || level < threshold {
		return
	}
	fn(level, msg)
}

var _ mikan.Client = (*Client)(nil)
