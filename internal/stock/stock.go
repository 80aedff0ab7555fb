// Package stock implements a generic keyed connection pool: one bounded
// sub-pool per key, with idle expiry and a per-key concurrency cap.
// Generalized from the teacher's internal/ldap/pool.go, which pooled a
// single LDAP connection kind behind min/max counts, idle/lifetime timers,
// and a periodic health-check sweep. This package keeps that shape but
// parameterizes the pooled item type and the key that selects a sub-pool
// (a child command line for internal/backend's LhttpStock).
package stock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrClosed is returned by Get after Close.
	ErrClosed = errors.New("stock: pool is closed")
	// ErrAcquireTimeout is returned when Get's context expires waiting for
	// a slot under a key's concurrency cap.
	ErrAcquireTimeout = errors.New("stock: timeout acquiring item")
)

// Item is a pooled resource. Healthy is consulted before reuse; Close
// releases the underlying resource (socket, file handle, ...).
type Item interface {
	Healthy() bool
	Close()
}

// Factory creates a new Item for key.
type Factory[K comparable, I Item] func(ctx context.Context, key K) (I, error)

// Config bounds one Map's behavior across all keys.
type Config struct {
	MaxPerKey           int           // concurrency cap per key (default 10)
	MaxIdleTime         time.Duration // idle items older than this are closed (default 15min)
	AcquireTimeout      time.Duration // Get's default wait when MaxPerKey is reached (default 10s)
	HealthCheckInterval time.Duration // sweep cadence (default 30s)
}

func (c *Config) setDefaults() {
	if c.MaxPerKey <= 0 {
		c.MaxPerKey = 10
	}

	if c.MaxIdleTime <= 0 {
		c.MaxIdleTime = 15 * time.Minute
	}

	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 10 * time.Second
	}

	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
}

type idleItem[I Item] struct {
	item     I
	lastUsed time.Time
}

// keyPool is the per-key sub-pool: a set of idle items plus a count of
// items currently on loan, bounded by Config.MaxPerKey.
type keyPool[I Item] struct {
	mu    sync.Mutex
	idle  []idleItem[I]
	inUse int
	ready chan struct{} // closed+replaced each time a slot frees up
}

func newKeyPool[I Item]() *keyPool[I] {
	return &keyPool[I]{ready: make(chan struct{})}
}

func (kp *keyPool[I]) signal() {
	close(kp.ready)
	kp.ready = make(chan struct{})
}

// Map is a generic keyed pool (spec §4.6 TcpStock).
type Map[K comparable, I Item] struct {
	cfg     Config
	factory Factory[K, I]

	mu    sync.Mutex
	pools map[K]*keyPool[I]

	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New[K comparable, I Item](cfg Config, factory Factory[K, I]) *Map[K, I] {
	cfg.setDefaults()

	m := &Map[K, I]{
		cfg:     cfg,
		factory: factory,
		pools:   make(map[K]*keyPool[I]),
		stopCh:  make(chan struct{}),
	}

	m.wg.Add(1)
	go m.sweepLoop()

	return m
}

func (m *Map[K, I]) keyPoolFor(key K) *keyPool[I] {
	m.mu.Lock()
	defer m.mu.Unlock()

	kp, ok := m.pools[key]
	if !ok {
		kp = newKeyPool[I]()
		m.pools[key] = kp
	}

	return kp
}

// Get acquires an item for key, reusing a healthy idle one when available,
// otherwise creating a new one (blocking, subject to ctx, once MaxPerKey is
// reached). The caller must call Put when done.
func (m *Map[K, I]) Get(ctx context.Context, key K) (I, error) {
	var zero I

	for {
		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()

		if closed {
			return zero, ErrClosed
		}

		kp := m.keyPoolFor(key)

		kp.mu.Lock()

		for len(kp.idle) > 0 {
			last := len(kp.idle) - 1
			cand := kp.idle[last]
			kp.idle = kp.idle[:last]

			if !cand.item.Healthy() {
				cand.item.Close()
				continue
			}

			kp.inUse++
			kp.mu.Unlock()

			return cand.item, nil
		}

		if kp.inUse < m.cfg.MaxPerKey {
			kp.inUse++
			kp.mu.Unlock()

			item, err := m.factory(ctx, key)
			if err != nil {
				kp.mu.Lock()
				kp.inUse--
				kp.signal()
				kp.mu.Unlock()

				return zero, err
			}

			return item, nil
		}

		ready := kp.ready
		kp.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ErrAcquireTimeout
		case <-ready:
			// a slot may have freed up; loop and retry
		}
	}
}

// Put returns item to key's idle set when healthy is true, or closes it
// and frees its slot otherwise. After Close, every returned item is closed.
func (m *Map[K, I]) Put(key K, item I, healthy bool) {
	kp := m.keyPoolFor(key)

	kp.mu.Lock()
	defer kp.mu.Unlock()

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()

	kp.inUse--

	if healthy && !closed && item.Healthy() {
		kp.idle = append(kp.idle, idleItem[I]{item: item, lastUsed: time.Now()})
	} else {
		item.Close()
	}

	kp.signal()
}

// Len reports the number of idle items cached across all keys, for tests.
func (m *Map[K, I]) Len() int {
	m.mu.Lock()
	keys := make([]K, 0, len(m.pools))
	for k := range m.pools {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	n := 0
	for _, k := range keys {
		kp := m.keyPoolFor(k)
		kp.mu.Lock()
		n += len(kp.idle)
		kp.mu.Unlock()
	}

	return n
}

func (m *Map[K, I]) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Map[K, I]) sweep() {
	m.mu.Lock()
	pools := make([]*keyPool[I], 0, len(m.pools))
	for _, kp := range m.pools {
		pools = append(pools, kp)
	}
	m.mu.Unlock()

	now := time.Now()
	closedCount := 0

	for _, kp := range pools {
		kp.mu.Lock()

		kept := kp.idle[:0]
		for _, it := range kp.idle {
			if now.Sub(it.lastUsed) > m.cfg.MaxIdleTime || !it.item.Healthy() {
				it.item.Close()
				closedCount++
				continue
			}

			kept = append(kept, it)
		}

		kp.idle = kept
		kp.mu.Unlock()
	}

	if closedCount > 0 {
		log.Debug().Int("closed", closedCount).Msg("stock: swept idle items")
	}
}

// Close shuts the pool down, closing every idle item. Items currently on
// loan are closed by their owner's next Put.
func (m *Map[K, I]) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	m.closed = true
	pools := make([]*keyPool[I], 0, len(m.pools))
	for _, kp := range m.pools {
		pools = append(pools, kp)
	}
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	for _, kp := range pools {
		kp.mu.Lock()
		for _, it := range kp.idle {
			it.item.Close()
		}
		kp.idle = nil
		kp.mu.Unlock()
	}
}
