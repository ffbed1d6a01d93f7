package main

import (
	"context"
	"log/slog"

	"github.com/go-gl/mathgl/mgl64"

	"mikanlink/pkg/config"
	"mikanlink/pkg/mikan"
	"mikanlink/pkg/mikan/mockmikan"
	"mikanlink/pkg/mikan/wsclient"
	"mikanlink/pkg/xform"
)

// initializeMikanClient picks the compositor transport. The mock runs its
// frame generator on ctx and is seeded with a small anchor set.
func initializeMikanClient(ctx context.Context, cfg *config.Config, provider string) mikan.Client {
	if provider == config.ProviderMock {
		slog.Info("Mikan Source: Mock")
		mc := mockmikan.NewClient(mockmikan.DefaultConfig())
		seedMockAnchors(mc)
		go mc.Run(ctx)
		return mc
	}

	slog.Info("Mikan Source: WebSocket", "url", cfg.Mikan.URL)
	return wsclient.New(wsclient.Config{
		URL:            cfg.Mikan.URL,
		RequestTimeout: cfg.Mikan.RequestTimeout.Std(),
		EventQueueSize: cfg.Mikan.EventQueueSize,
	})
}

func seedMockAnchors(mc *mockmikan.Client) {
	mc.AddAnchor("origin", xform.Identity())

	table := xform.Identity()
	table.Position = mgl64.Vec3{0.5, 0.75, -1}
	mc.AddAnchor("table", table)
}
