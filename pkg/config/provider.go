package config

import (
	"context"
	"strconv"
	"time"

	"mikanlink/pkg/store"
)

// Provider defines the interface for accessing unified configuration.
type Provider interface {
	// Connection
	MikanProvider(ctx context.Context) string
	ReconnectInterval(ctx context.Context) time.Duration
	TickInterval(ctx context.Context) time.Duration

	// Scene
	OriginAnchorName(ctx context.Context) string
	SceneScale(ctx context.Context) float64
	MetersToUnits(ctx context.Context) float64
	SetOriginAnchorName(ctx context.Context, name string) error
	SetSceneScale(ctx context.Context, scale float64) error

	// Raw access (for components that need deep access)
	AppConfig() *Config
}

// UnifiedProvider implements Provider by bridging static Config and persistent Store.
type UnifiedProvider struct {
	base  *Config
	store store.StateStore
}

// NewProvider creates a new UnifiedProvider. st may be nil.
func NewProvider(base *Config, st store.StateStore) *UnifiedProvider {
	return &UnifiedProvider{
		base:  base,
		store: st,
	}
}

func (p *UnifiedProvider) AppConfig() *Config { return p.base }

// --- Implementations ---

func (p *UnifiedProvider) MikanProvider(ctx context.Context) string {
	fallback := p.base.Mikan.Provider
	if fallback == "" {
		fallback = ProviderWebSocket
	}
	return p.getString(ctx, KeyMikanProvider, fallback)
}

func (p *UnifiedProvider) ReconnectInterval(ctx context.Context) time.Duration {
	return p.base.Mikan.ReconnectInterval.Std()
}

func (p *UnifiedProvider) TickInterval(ctx context.Context) time.Duration {
	return p.base.Mikan.TickInterval.Std()
}

// OriginAnchorName returns the stored origin anchor. A stored empty name is
// honoured so the origin can be cleared at runtime.
func (p *UnifiedProvider) OriginAnchorName(ctx context.Context) string {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, KeyOriginAnchor); ok {
			return val
		}
	}
	return p.base.Scene.OriginAnchor
}

func (p *UnifiedProvider) SceneScale(ctx context.Context) float64 {
	fallback := p.base.Scene.Scale
	if fallback <= 0 {
		fallback = 1
	}
	return p.getFloat64(ctx, KeySceneScale, fallback)
}

func (p *UnifiedProvider) MetersToUnits(ctx context.Context) float64 {
	return p.base.Scene.MetersToUnits
}

func (p *UnifiedProvider) SetOriginAnchorName(ctx context.Context, name string) error {
	if p.store == nil {
		p.base.Scene.OriginAnchor = name
		return nil
	}
	return p.store.SetState(ctx, KeyOriginAnchor, name)
}

func (p *UnifiedProvider) SetSceneScale(ctx context.Context, scale float64) error {
	if p.store == nil {
		p.base.Scene.Scale = scale
		return nil
	}
	return p.store.SetState(ctx, KeySceneScale, strconv.FormatFloat(scale, 'g', -1, 64))
}

// --- Helpers ---

func (p *UnifiedProvider) getString(ctx context.Context, key, fallback string) string {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val
		}
	}
	return fallback
}

func (p *UnifiedProvider) getFloat64(ctx context.Context, key string, fallback float64) float64 {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f
			}
		}
	}
	return fallback
}
