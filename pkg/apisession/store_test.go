package apisession

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	messages []string
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(ttl time.Duration) (*Store[inbox], *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(ttl, func() *inbox { return &inbox{} })
	s.now = c.now
	return s, c
}

func TestGetCreatesOnce(t *testing.T) {
	s, _ := newTestStore(time.Minute)

	a := s.Get("a")
	require.NotNil(t, a)
	a.messages = append(a.messages, "hello")

	assert.Same(t, a, s.Get("a"))
	b := s.Get("b")
	assert.NotSame(t, a, b)
	assert.Empty(t, b.messages)
	assert.Equal(t, 2, s.Len())
}

func TestExpiry(t *testing.T) {
	s, c := newTestStore(time.Minute)

	s.Get("idle")
	s.Get("busy")
	c.advance(45 * time.Second)
	s.Get("busy")
	c.advance(30 * time.Second)

	s.Cleanup()
	assert.Equal(t, 1, s.Len())

	var ids []string
	s.Range(func(id string, _ *inbox) { ids = append(ids, id) })
	assert.Equal(t, []string{"busy"}, ids)
}

func TestRangeDoesNotRefresh(t *testing.T) {
	s, c := newTestStore(time.Minute)
	s.Get("a")

	c.advance(50 * time.Second)
	s.Range(func(string, *inbox) {})
	c.advance(20 * time.Second)

	s.Cleanup()
	assert.Zero(t, s.Len())
}

func TestRangeVisitsAll(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	for _, id := range []string{"x", "y", "z"} {
		s.Get(id)
	}

	var ids []string
	s.Range(func(id string, v *inbox) {
		v.messages = append(v.messages, "broadcast")
		ids = append(ids, id)
	})
	sort.Strings(ids)
	assert.Equal(t, []string{"x", "y", "z"}, ids)
	assert.Equal(t, []string{"broadcast"}, s.Get("y").messages)
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	first := s.Get("a")
	s.Delete("a")
	assert.Zero(t, s.Len())
	assert.NotSame(t, first, s.Get("a"))
}

func TestConcurrentGet(t *testing.T) {
	s := New(time.Minute, func() *inbox { return &inbox{} })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Get("shared")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, s.Len())
}
