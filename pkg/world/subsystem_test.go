package world

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mikanlink/pkg/bridge"
	"mikanlink/pkg/capture"
	"mikanlink/pkg/mikan"
	"mikanlink/pkg/mikan/mockmikan"
	"mikanlink/pkg/scene"
	"mikanlink/pkg/tracker"
	"mikanlink/pkg/xform"
)

var _ bridge.Listener = (*Subsystem)(nil)

const dt = 16 * time.Millisecond

type rig struct {
	client *mockmikan.Client
	bridge *bridge.Module
	world  *Subsystem
	scene  *scene.Scene
	camera *capture.Camera
}

func newRig(t *testing.T) *rig {
	t.Helper()
	client := mockmikan.NewClient(mockmikan.DefaultConfig())
	require.NoError(t, client.Initialize(mikan.LogInfo, nil))

	tr := tracker.New()
	mod := bridge.New(client, bridge.Options{}, tr)
	cam, err := capture.NewCamera(capture.NewMemoryBackend(), client, capture.Options{PublishWorkers: 1}, tr)
	require.NoError(t, err)
	t.Cleanup(cam.Close)

	sc := scene.New(client, cam, nil, scene.Options{Scale: 1, MetersToUnits: 100})
	w := New(client, mod, mikan.GraphicsDirect3D11)
	w.BindScene(sc, cam)
	mod.Register(w)

	return &rig{client: client, bridge: mod, world: w, scene: sc, camera: cam}
}

func TestConnectAllocatesMatchingBuffers(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.client.AddAnchor("table", xform.Identity())

	var connected int
	r.world.OnConnectedHook(func(context.Context) { connected++ })

	r.bridge.Tick(ctx, dt)
	require.True(t, r.bridge.IsConnected())
	assert.Equal(t, 1, connected)

	desc, ok := r.world.Descriptor()
	require.True(t, ok)
	assert.Equal(t, uint32(1280), desc.Width)
	assert.Equal(t, uint32(720), desc.Height)
	assert.Equal(t, mikan.ColorBufferBGRA32, desc.ColorBuffer)
	assert.Equal(t, mikan.DepthBufferNone, desc.DepthBuffer)
	assert.Equal(t, mikan.ColorKey{}, desc.ColorKey)
	assert.Equal(t, mikan.GraphicsDirect3D11, desc.GraphicsAPI)

	allocated, ok := r.client.Allocated()
	require.True(t, ok)
	assert.Equal(t, desc, allocated)

	target := r.camera.Target()
	require.NotNil(t, target)
	assert.Equal(t, desc.Width, target.Width)
	assert.Equal(t, desc.Height, target.Height)

	assert.Len(t, r.scene.Anchors(), 1)
	assert.Equal(t, mockmikan.DefaultConfig().HFOV, r.camera.FOV())
}

func TestVideoModeChangeReallocates(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.bridge.Tick(ctx, dt)

	r.client.SetVideoMode(mikan.VideoSourceMode{Name: "vga", ResolutionX: 640, ResolutionY: 480, FrameRate: 30})
	r.bridge.Tick(ctx, dt)

	desc, ok := r.world.Descriptor()
	require.True(t, ok)
	assert.Equal(t, uint32(640), desc.Width)
	allocated, _ := r.client.Allocated()
	assert.Equal(t, desc, allocated)
	assert.Equal(t, uint32(480), r.camera.Target().Height)
}

func TestNewFramePublishes(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.bridge.Tick(ctx, dt)

	r.client.Push(mikan.VideoSourceNewFrameEvent{
		Frame: 5,
		Camera: mikan.CameraPose{
			Position: mgl64.Vec3{0, 1, 0},
			Forward:  mgl64.Vec3{0, 0, -1},
			Up:       mgl64.Vec3{0, 1, 0},
		},
	})
	r.bridge.Tick(ctx, dt)

	assert.InDeltaSlice(t, []float64{0, 0, 100}, vecSlice(r.camera.Transform().Position), 1e-9)
	handle := r.camera.Target().Handle
	assert.Eventually(t, func() bool {
		pub := r.client.Published()
		return len(pub) == 1 && pub[0].Frame == 5 && pub[0].Handle == handle
	}, time.Second, 5*time.Millisecond)
}

func TestDisconnectFreesBuffers(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	var disconnected int
	r.world.OnDisconnectedHook(func(context.Context) { disconnected++ })

	r.bridge.Tick(ctx, dt)
	require.NotNil(t, r.camera.Target())

	r.client.DropLink()
	r.client.FailNextConnects(1)
	r.bridge.Tick(ctx, dt)

	assert.Equal(t, 1, disconnected)
	_, ok := r.world.Descriptor()
	assert.False(t, ok)
	assert.Nil(t, r.camera.Target())
}

func TestReallocateWithoutVideoSource(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.bridge.Tick(ctx, dt)

	r.client.CloseVideoSource()
	err := r.world.ReallocateRenderBuffers(ctx)
	assert.Error(t, err)

	_, ok := r.world.Descriptor()
	assert.False(t, ok)
	_, ok = r.client.Allocated()
	assert.False(t, ok)
	assert.Nil(t, r.camera.Target())
}

type failingCamera struct{ disposed int }

func (c *failingCamera) RecreateRenderTarget(mikan.RenderTargetDescriptor) error {
	return errors.New("out of memory")
}
func (c *failingCamera) DisposeRenderTarget() { c.disposed++ }

func TestCameraFailureReleasesSharedBuffers(t *testing.T) {
	ctx := context.Background()
	client := mockmikan.NewClient(mockmikan.DefaultConfig())
	require.NoError(t, client.Initialize(mikan.LogInfo, nil))
	require.NoError(t, client.Connect(ctx, mikan.ClientInfo{}))

	w := New(client, nil, mikan.GraphicsOpenGL)
	cam := &failingCamera{}
	w.BindScene(nil, cam)

	assert.Error(t, w.ReallocateRenderBuffers(ctx))
	_, ok := client.Allocated()
	assert.False(t, ok, "shared buffers must not outlive a failed camera target")
	_, ok = w.Descriptor()
	assert.False(t, ok)
}

func TestScriptMessages(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	var got []string
	r.world.OnMessageHook(func(_ context.Context, msg string) { got = append(got, msg) })

	assert.ErrorIs(t, r.world.SendMessage(ctx, "early"), mikan.ErrNotConnected)

	r.bridge.Tick(ctx, dt)
	r.client.PostScriptMessage("hello")
	r.bridge.Tick(ctx, dt)
	assert.Equal(t, []string{"hello"}, got)

	require.NoError(t, r.world.SendMessage(ctx, "reply"))
	assert.Equal(t, []string{"reply"}, r.client.SentMessages())
}

func TestUnbindScene(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.bridge.Tick(ctx, dt)

	r.world.UnbindScene()
	assert.Nil(t, r.world.Scene())
	assert.Nil(t, r.camera.Target())

	// Events without a scene are ignored.
	r.client.AddAnchor("x", xform.Identity())
	r.bridge.Tick(ctx, dt)
	assert.Empty(t, r.scene.Anchors())
}

// vecSlice returns v as a slice; method results are not addressable and cannot be sliced directly.
func vecSlice(v mgl64.Vec3) []float64 { return v[:] }
