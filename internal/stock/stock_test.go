package stock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     int
	closed bool
	alive  bool
}

func (c *fakeConn) Healthy() bool { return c.alive && !c.closed }
func (c *fakeConn) Close()        { c.closed = true }

func TestMap_GetPut_ReusesHealthyItem(t *testing.T) {
	var created int32

	m := New(Config{}, func(ctx context.Context, key string) (*fakeConn, error) {
		n := atomic.AddInt32(&created, 1)
		return &fakeConn{id: int(n), alive: true}, nil
	})
	defer m.Close()

	ctx := context.Background()

	item1, err := m.Get(ctx, "backend-a")
	require.NoError(t, err)
	m.Put("backend-a", item1, true)

	item2, err := m.Get(ctx, "backend-a")
	require.NoError(t, err)

	assert.Same(t, item1, item2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&created))
}

func TestMap_Put_UnhealthyClosesAndFreesSlot(t *testing.T) {
	m := New(Config{}, func(ctx context.Context, key string) (*fakeConn, error) {
		return &fakeConn{alive: true}, nil
	})
	defer m.Close()

	ctx := context.Background()

	item, err := m.Get(ctx, "backend-a")
	require.NoError(t, err)

	item.alive = false
	m.Put("backend-a", item, false)

	assert.True(t, item.closed)
	assert.Equal(t, 0, m.Len())
}

func TestMap_Get_BlocksAtConcurrencyCapUntilPut(t *testing.T) {
	m := New(Config{MaxPerKey: 1}, func(ctx context.Context, key string) (*fakeConn, error) {
		return &fakeConn{alive: true}, nil
	})
	defer m.Close()

	ctx := context.Background()

	first, err := m.Get(ctx, "backend-a")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		second, err := m.Get(ctx, "backend-a")
		require.NoError(t, err)
		m.Put("backend-a", second, true)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	m.Put("backend-a", first, true)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock after Put freed a slot")
	}
}

func TestMap_Get_TimesOutAtConcurrencyCap(t *testing.T) {
	m := New(Config{MaxPerKey: 1}, func(ctx context.Context, key string) (*fakeConn, error) {
		return &fakeConn{alive: true}, nil
	})
	defer m.Close()

	_, err := m.Get(context.Background(), "backend-a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = m.Get(ctx, "backend-a")
	assert.ErrorIs(t, err, ErrAcquireTimeout)
}

func TestMap_Close_RejectsFurtherGets(t *testing.T) {
	m := New(Config{}, func(ctx context.Context, key string) (*fakeConn, error) {
		return &fakeConn{alive: true}, nil
	})
	m.Close()

	_, err := m.Get(context.Background(), "backend-a")
	assert.ErrorIs(t, err, ErrClosed)
}
