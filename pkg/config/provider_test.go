package config

import (
	"context"
	"testing"
	"time"
)

// MockStateStore implements store.StateStore for testing.
type MockStateStore struct {
	data map[string]string
}

func NewMockStateStore() *MockStateStore {
	return &MockStateStore{data: make(map[string]string)}
}

func (m *MockStateStore) GetState(ctx context.Context, key string) (string, bool) {
	val, ok := m.data[key]
	return val, ok
}

func (m *MockStateStore) SetState(ctx context.Context, key, val string) error {
	m.data[key] = val
	return nil
}

func (m *MockStateStore) DeleteState(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestUnifiedProvider(t *testing.T) {
	ctx := context.Background()
	baseCfg := DefaultConfig()
	baseCfg.Mikan.Provider = ProviderMock
	baseCfg.Mikan.TickInterval = Duration(20 * time.Millisecond)
	baseCfg.Scene.OriginAnchor = "table"
	baseCfg.Scene.Scale = 2

	store := NewMockStateStore()
	p := NewProvider(baseCfg, store)

	t.Run("Defaults_And_Fallbacks", func(t *testing.T) {
		if p.MikanProvider(ctx) != ProviderMock {
			t.Errorf("expected mock, got %s", p.MikanProvider(ctx))
		}
		if p.TickInterval(ctx) != 20*time.Millisecond {
			t.Errorf("expected 20ms, got %v", p.TickInterval(ctx))
		}
		if p.ReconnectInterval(ctx) != time.Second {
			t.Errorf("expected 1s, got %v", p.ReconnectInterval(ctx))
		}
		if p.OriginAnchorName(ctx) != "table" {
			t.Errorf("expected table, got %q", p.OriginAnchorName(ctx))
		}
		if p.SceneScale(ctx) != 2 {
			t.Errorf("expected 2, got %f", p.SceneScale(ctx))
		}
		if p.MetersToUnits(ctx) != 100 {
			t.Errorf("expected 100, got %f", p.MetersToUnits(ctx))
		}
		if p.AppConfig() != baseCfg {
			t.Error("AppConfig should return the base config")
		}
	})

	t.Run("Store_Overrides", func(t *testing.T) {
		if err := p.SetOriginAnchorName(ctx, "door"); err != nil {
			t.Fatal(err)
		}
		if err := p.SetSceneScale(ctx, 0.5); err != nil {
			t.Fatal(err)
		}
		store.SetState(ctx, KeyMikanProvider, ProviderWebSocket)

		if p.OriginAnchorName(ctx) != "door" {
			t.Errorf("expected door, got %q", p.OriginAnchorName(ctx))
		}
		if p.SceneScale(ctx) != 0.5 {
			t.Errorf("expected 0.5, got %f", p.SceneScale(ctx))
		}
		if p.MikanProvider(ctx) != ProviderWebSocket {
			t.Errorf("expected websocket, got %s", p.MikanProvider(ctx))
		}
		// Static config is untouched.
		if baseCfg.Scene.OriginAnchor != "table" {
			t.Error("store override leaked into base config")
		}
	})

	t.Run("Empty_Origin_Is_Honoured", func(t *testing.T) {
		if err := p.SetOriginAnchorName(ctx, ""); err != nil {
			t.Fatal(err)
		}
		if got := p.OriginAnchorName(ctx); got != "" {
			t.Errorf("expected cleared origin, got %q", got)
		}
	})

	t.Run("Corrupt_Scale_Falls_Back", func(t *testing.T) {
		store.SetState(ctx, KeySceneScale, "not-a-number")
		if p.SceneScale(ctx) != 2 {
			t.Errorf("expected fallback 2, got %f", p.SceneScale(ctx))
		}
	})
}

func TestUnifiedProvider_NilStore(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	p := NewProvider(cfg, nil)

	if err := p.SetSceneScale(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if p.SceneScale(ctx) != 3 {
		t.Errorf("expected 3, got %f", p.SceneScale(ctx))
	}
	if err := p.SetOriginAnchorName(ctx, "desk"); err != nil {
		t.Fatal(err)
	}
	if p.OriginAnchorName(ctx) != "desk" {
		t.Errorf("expected desk, got %q", p.OriginAnchorName(ctx))
	}
}
