package capture

import (
	"fmt"
	"sync"

	"mikanlink/pkg/mikan"
)

// RenderTarget is an off-screen colour buffer the camera renders into.
// Handle is the native texture handle shared with the compositor.
type RenderTarget struct {
	Width  uint32
	Height uint32
	Format mikan.ColorBufferType
	Handle uintptr
	Pixels []byte
}

// Backend creates and releases render targets.
type Backend interface {
	CreateRenderTarget(desc mikan.RenderTargetDescriptor) (*RenderTarget, error)
	ReleaseRenderTarget(rt *RenderTarget)
}

// MemoryBackend keeps render targets as CPU buffers. Handles are small
// non-zero integers, unique for the lifetime of the backend.
type MemoryBackend struct {
	mu   sync.Mutex
	next uintptr
	live map[uintptr]*RenderTarget
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{live: make(map[uintptr]*RenderTarget)}
}

func (b *MemoryBackend) CreateRenderTarget(desc mikan.RenderTargetDescriptor) (*RenderTarget, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("invalid render target size %dx%d", desc.Width, desc.Height)
	}
	bpp := bytesPerPixel(desc.ColorBuffer)
	if bpp == 0 {
		return nil, fmt.Errorf("unsupported colour buffer %s", desc.ColorBuffer)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	rt := &RenderTarget{
		Width:  desc.Width,
		Height: desc.Height,
		Format: desc.ColorBuffer,
		Handle: b.next,
		Pixels: make([]byte, int(desc.Width)*int(desc.Height)*bpp),
	}
	b.live[rt.Handle] = rt
	return rt, nil
}

func (b *MemoryBackend) ReleaseRenderTarget(rt *RenderTarget) {
	if rt == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.live, rt.Handle)
	rt.Pixels = nil
}

// Live returns the number of targets not yet released.
func (b *MemoryBackend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

func bytesPerPixel(t mikan.ColorBufferType) int {
	switch t {
	case mikan.ColorBufferRGB24:
		return 3
	case mikan.ColorBufferRGBA32, mikan.ColorBufferBGRA32:
		return 4
	default:
		return 0
	}
}
