package mockmikan

import (
	"context"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"mikanlink/pkg/mikan"
)

// Run emits a new-frame event at the configured frame rate until ctx is done.
// The camera circles the origin at OrbitRadius, looking at it. Frames are only
// produced while a client is connected.
func (c *Client) Run(ctx context.Context) {
	rate := c.config.FrameRate
	if rate <= 0 {
		rate = 30
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.emitFrame(now.Sub(start))
		}
	}
}

func (c *Client) emitFrame(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || !c.hasVideo {
		return
	}
	c.frame++
	c.pushLocked(mikan.VideoSourceNewFrameEvent{
		Frame:  c.frame,
		Camera: OrbitPose(c.config, elapsed),
	})
}

// OrbitPose returns the generated camera pose at a point in time.
func OrbitPose(cfg Config, elapsed time.Duration) mikan.CameraPose {
	angle := 0.0
	if cfg.OrbitPeriod > 0 {
		angle = 2 * math.Pi * elapsed.Seconds() / cfg.OrbitPeriod.Seconds()
	}
	pos := mgl64.Vec3{
		cfg.OrbitRadius * math.Cos(angle),
		cfg.OrbitHeight,
		cfg.OrbitRadius * math.Sin(angle),
	}
	target := mgl64.Vec3{0, cfg.OrbitHeight, 0}

	forward := mgl64.Vec3{0, 0, -1}
	if d := target.Sub(pos); d.Len() > 1e-9 {
		forward = d.Normalize()
	}
	return mikan.CameraPose{
		Position: pos,
		Forward:  forward,
		Up:       mgl64.Vec3{0, 1, 0},
	}
}
