package bridge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mikanlink/pkg/mikan"
	"mikanlink/pkg/mikan/mockmikan"
	"mikanlink/pkg/tracker"
	"mikanlink/pkg/xform"
)

// recorder logs every callback as a short string.
type recorder struct {
	name  string
	calls []string
	// onCall runs after each callback is recorded, for mid-dispatch tests.
	onCall func(call string)
}

func (r *recorder) record(s string) {
	r.calls = append(r.calls, s)
	if r.onCall != nil {
		r.onCall(s)
	}
}

func (r *recorder) OnConnected(ctx context.Context)    { r.record("connected") }
func (r *recorder) OnDisconnected(ctx context.Context) { r.record("disconnected") }
func (r *recorder) OnAnchorListChanged(ctx context.Context) {
	r.record("anchorList")
}
func (r *recorder) OnAnchorPoseChanged(ctx context.Context, id mikan.AnchorID, t xform.Transform) {
	r.record(fmt.Sprintf("anchorPose:%d", id))
}
func (r *recorder) OnNewVideoFrame(ctx context.Context, frame uint64, camera mikan.CameraPose) {
	r.record(fmt.Sprintf("frame:%d", frame))
}
func (r *recorder) OnCameraIntrinsicsChanged(ctx context.Context) { r.record("intrinsics") }
func (r *recorder) OnCameraAttachmentChanged(ctx context.Context) { r.record("attachment") }
func (r *recorder) OnScriptMessage(ctx context.Context, message string) {
	r.record("script:" + message)
}

func newTestModule(t *testing.T) (*Module, *mockmikan.Client) {
	t.Helper()
	client := mockmikan.NewClient(mockmikan.DefaultConfig())
	require.NoError(t, client.Initialize(mikan.LogInfo, nil))
	m := New(client, Options{
		ClientInfo:        mikan.ClientInfo{ApplicationName: "bridge-test"},
		ReconnectInterval: time.Second,
	}, tracker.New())
	return m, client
}

const frame = 100 * time.Millisecond

func TestTick_NoListenersNoConnectAttempt(t *testing.T) {
	m, client := newTestModule(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		m.Tick(ctx, frame)
	}
	assert.Equal(t, 0, client.ConnectCalls())
	assert.Equal(t, StateDisconnected, m.State())
}

func TestTick_ConnectFiresConnectedOnce(t *testing.T) {
	m, client := newTestModule(t)
	ctx := context.Background()
	a, b := &recorder{name: "a"}, &recorder{name: "b"}
	m.Register(a)
	m.Register(b)

	m.Tick(ctx, frame)
	require.True(t, m.IsConnected())
	assert.Equal(t, "bridge-test", client.ClientInfo().ApplicationName)

	// The compositor's own connected event is swallowed.
	m.Tick(ctx, frame)
	assert.Equal(t, []string{"connected"}, a.calls)
	assert.Equal(t, []string{"connected"}, b.calls)
}

func TestTick_ReconnectBackoff(t *testing.T) {
	m, client := newTestModule(t)
	ctx := context.Background()
	m.Register(&recorder{})
	client.FailNextConnects(1)

	// First attempt at T=0 fails.
	m.Tick(ctx, frame)
	require.Equal(t, 1, client.ConnectCalls())
	assert.Equal(t, StateConnecting, m.State())

	// Nine more frames reach T=0.9s: still cooling down.
	for i := 0; i < 9; i++ {
		m.Tick(ctx, frame)
	}
	assert.Equal(t, 1, client.ConnectCalls(), "no attempt before the backoff elapses")

	// T=1.0s: exactly one new attempt, which succeeds.
	m.Tick(ctx, frame)
	assert.Equal(t, 2, client.ConnectCalls())
	assert.Equal(t, StateConnected, m.State())

	for i := 0; i < 10; i++ {
		m.Tick(ctx, frame)
	}
	assert.Equal(t, 2, client.ConnectCalls())
}

func TestTick_BackoffResetsAfterEachFailure(t *testing.T) {
	m, client := newTestModule(t)
	ctx := context.Background()
	m.Register(&recorder{})
	client.FailNextConnects(3)

	for i := 0; i < 25; i++ {
		m.Tick(ctx, frame)
	}
	// Attempts on ticks 1, 11 and 21 fail.
	assert.Equal(t, 3, client.ConnectCalls())
	assert.Equal(t, StateConnecting, m.State())

	for i := 0; i < 6; i++ {
		m.Tick(ctx, frame)
	}
	assert.Equal(t, 4, client.ConnectCalls())
	assert.True(t, m.IsConnected())
}

func TestTick_BackoffPausedWithoutListeners(t *testing.T) {
	m, client := newTestModule(t)
	ctx := context.Background()
	l := &recorder{}
	m.Register(l)
	client.FailNextConnects(1)
	m.Tick(ctx, frame)
	require.Equal(t, 1, client.ConnectCalls())

	m.Unregister(ctx, l)
	for i := 0; i < 30; i++ {
		m.Tick(ctx, frame)
	}
	assert.Equal(t, 1, client.ConnectCalls())
}

func TestTick_DispatchOrder(t *testing.T) {
	m, client := newTestModule(t)
	ctx := context.Background()
	a, b := &recorder{}, &recorder{}
	m.Register(a)
	m.Register(b)
	m.Tick(ctx, frame)
	m.Tick(ctx, frame)
	a.calls, b.calls = nil, nil

	client.Push(
		mikan.ScriptMessagePostedEvent{Message: "E1"},
		mikan.AnchorPoseUpdatedEvent{AnchorID: 7},
		mikan.ScriptMessagePostedEvent{Message: "E3"},
	)
	m.Tick(ctx, frame)

	want := []string{"script:E1", "anchorPose:7", "script:E3"}
	assert.Equal(t, want, a.calls)
	assert.Equal(t, want, b.calls)
	assert.Equal(t, 0, client.Pending())
}

func TestTick_Routing(t *testing.T) {
	m, client := newTestModule(t)
	ctx := context.Background()
	r := &recorder{}
	m.Register(r)
	m.Tick(ctx, frame)
	m.Tick(ctx, frame)
	r.calls = nil

	client.Push(
		mikan.VideoSourceOpenedEvent{},
		mikan.VideoSourceModeChangedEvent{},
		mikan.VideoSourceIntrinsicsChangedEvent{},
		mikan.VideoSourceClosedEvent{},
		mikan.VideoSourceNewFrameEvent{Frame: 42},
		mikan.VideoSourceAttachmentChangedEvent{},
		mikan.VRDevicePoseUpdatedEvent{DeviceID: 1},
		mikan.VRDeviceListUpdatedEvent{},
		mikan.AnchorListUpdatedEvent{},
	)
	m.Tick(ctx, frame)

	assert.Equal(t, []string{
		"intrinsics", "intrinsics", "intrinsics",
		"frame:42", "attachment", "anchorList",
	}, r.calls)

	stats := m.tracker.Snapshot()
	assert.Equal(t, int64(1), stats.Events["vrDevicePoseUpdated"])
	assert.Equal(t, int64(1), stats.Events["videoSourceClosed"])
}

func TestTick_RecipientSetFixedPerTick(t *testing.T) {
	m, client := newTestModule(t)
	ctx := context.Background()
	late := &recorder{name: "late"}
	early := &recorder{name: "early"}
	early.onCall = func(call string) {
		if call == "script:E1" {
			m.Register(late)
		}
	}
	m.Register(early)
	m.Tick(ctx, frame)
	m.Tick(ctx, frame)

	client.Push(
		mikan.ScriptMessagePostedEvent{Message: "E1"},
		mikan.ScriptMessagePostedEvent{Message: "E2"},
	)
	m.Tick(ctx, frame)
	assert.Empty(t, late.calls, "listener registered mid-dispatch waits for the next tick")

	client.Push(mikan.ScriptMessagePostedEvent{Message: "E3"})
	m.Tick(ctx, frame)
	assert.Equal(t, []string{"script:E3"}, late.calls)
}

func TestRegister_ReferenceCounted(t *testing.T) {
	m, client := newTestModule(t)
	ctx := context.Background()
	l := &recorder{}

	m.Register(l)
	m.Register(l)
	assert.Equal(t, 1, m.ListenerCount())
	m.Tick(ctx, frame)
	require.True(t, m.IsConnected())

	client.PostScriptMessage("once")
	m.Tick(ctx, frame)
	assert.Equal(t, []string{"connected", "script:once"}, l.calls, "duplicate registration must not duplicate delivery")

	m.Unregister(ctx, l)
	assert.Equal(t, 1, m.ListenerCount())
	assert.True(t, m.IsConnected())
	assert.Equal(t, 0, client.DisconnectCalls())

	m.Unregister(ctx, l)
	assert.Equal(t, 0, m.ListenerCount())
	assert.False(t, m.IsConnected())
	assert.Equal(t, 1, client.DisconnectCalls())

	m.Unregister(ctx, l)
	assert.Equal(t, 1, client.DisconnectCalls(), "third unregister is a no-op")
}

func TestUnregister_OtherListenersKeepConnection(t *testing.T) {
	m, client := newTestModule(t)
	ctx := context.Background()
	a, b := &recorder{}, &recorder{}
	m.Register(a)
	m.Register(b)
	m.Tick(ctx, frame)

	m.Unregister(ctx, a)
	assert.True(t, m.IsConnected())
	assert.Equal(t, 0, client.DisconnectCalls())
}

func TestTick_LinkLossDetected(t *testing.T) {
	m, client := newTestModule(t)
	ctx := context.Background()
	r := &recorder{}
	m.Register(r)
	m.Tick(ctx, frame)
	m.Tick(ctx, frame)

	client.DropLink()
	client.FailNextConnects(1)
	m.Tick(ctx, frame)

	assert.Equal(t, []string{"connected", "disconnected"}, r.calls)
	assert.Equal(t, StateConnecting, m.State())
}

func TestTick_DisconnectedEventStopsDrain(t *testing.T) {
	m, client := newTestModule(t)
	ctx := context.Background()
	r := &recorder{}
	m.Register(r)
	m.Tick(ctx, frame)
	m.Tick(ctx, frame)

	client.Push(
		mikan.ScriptMessagePostedEvent{Message: "before"},
		mikan.DisconnectedEvent{},
		mikan.ScriptMessagePostedEvent{Message: "after"},
	)
	m.Tick(ctx, frame)

	assert.Equal(t, []string{"connected", "script:before", "disconnected"}, r.calls)
	assert.False(t, m.IsConnected())
}

func TestTick_PollErrorEndsTick(t *testing.T) {
	m, client := newTestModule(t)
	ctx := context.Background()
	r := &recorder{}
	m.Register(r)
	m.Tick(ctx, frame)
	m.Tick(ctx, frame)

	client.PostScriptMessage("queued")
	client.FailPolls(errors.New("broken pipe"))
	m.Tick(ctx, frame)
	assert.Equal(t, []string{"connected"}, r.calls, "no retry within the tick")

	client.FailPolls(nil)
	m.Tick(ctx, frame)
	assert.Equal(t, []string{"connected", "script:queued"}, r.calls)
}

func TestUnregisterLastMidDispatchStopsDrain(t *testing.T) {
	m, client := newTestModule(t)
	ctx := context.Background()
	r := &recorder{}
	r.onCall = func(call string) {
		if call == "script:E1" {
			m.Unregister(ctx, r)
		}
	}
	m.Register(r)
	m.Tick(ctx, frame)
	m.Tick(ctx, frame)

	client.Push(
		mikan.ScriptMessagePostedEvent{Message: "E1"},
		mikan.ScriptMessagePostedEvent{Message: "E2"},
	)
	m.Tick(ctx, frame)

	assert.Equal(t, []string{"connected", "script:E1"}, r.calls)
	assert.False(t, m.IsConnected())
	assert.Equal(t, 1, client.DisconnectCalls())
}

func TestSendScriptMessage(t *testing.T) {
	m, client := newTestModule(t)
	ctx := context.Background()

	assert.ErrorIs(t, m.SendScriptMessage(ctx, "hi"), mikan.ErrNotConnected)

	m.Register(&recorder{})
	m.Tick(ctx, frame)
	require.NoError(t, m.SendScriptMessage(ctx, "hi"))
	assert.Equal(t, []string{"hi"}, client.SentMessages())
}

func TestShutdown(t *testing.T) {
	m, client := newTestModule(t)
	ctx := context.Background()
	m.Register(&recorder{})
	m.Tick(ctx, frame)

	require.NoError(t, m.Shutdown(ctx))
	assert.False(t, client.IsConnected())
	assert.Equal(t, StateDisconnected, m.State())
}
