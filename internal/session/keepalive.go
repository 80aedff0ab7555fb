package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Keepalive schedules a background fire-and-forget GET to a session's
// external_session_manager URL every external_session_keepalive seconds
// (spec §4.5 "External session manager"), following the teacher's
// ldap_cache.Manager Run(ctx)/Stop() shape: one goroutine per managed
// session, stopped individually or all at once via ctx cancellation.
type Keepalive struct {
	client *http.Client

	mu    sync.Mutex
	stops map[ID]chan struct{}
}

func NewKeepalive() *Keepalive {
	return &Keepalive{
		client: &http.Client{Timeout: 10 * time.Second},
		stops:  make(map[ID]chan struct{}),
	}
}

// Start begins (or restarts) keepalive pings for one session. 3xx/4xx/5xx
// responses and transport errors are logged but never affect the session
// (spec §4.5 "fire-and-forget ... do not affect the session").
func (k *Keepalive) Start(ctx context.Context, id ID, url string, interval time.Duration) {
	if interval <= 0 || url == "" {
		return
	}

	k.Stop(id)

	stop := make(chan struct{})

	k.mu.Lock()
	k.stops[id] = stop
	k.mu.Unlock()

	go k.run(ctx, id, url, interval, stop)
}

func (k *Keepalive) run(ctx context.Context, id ID, url string, interval time.Duration, stop chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-t.C:
			k.ping(ctx, id, url)
		}
	}
}

func (k *Keepalive) ping(ctx context.Context, id ID, url string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Warn().Uint64("session", uint64(id)).Err(err).Msg("session: keepalive request build failed")
		return
	}

	resp, err := k.client.Do(req)
	if err != nil {
		log.Warn().Uint64("session", uint64(id)).Str("url", url).Err(err).Msg("session: keepalive ping failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn().Uint64("session", uint64(id)).Int("status", resp.StatusCode).Msg("session: keepalive ping returned non-2xx")
	}
}

// Stop cancels keepalive pings for one session, if any are running.
func (k *Keepalive) Stop(id ID) {
	k.mu.Lock()
	stop, ok := k.stops[id]
	if ok {
		delete(k.stops, id)
	}
	k.mu.Unlock()

	if ok {
		close(stop)
	}
}

// StopAll cancels every running keepalive goroutine.
func (k *Keepalive) StopAll() {
	k.mu.Lock()
	stops := k.stops
	k.stops = make(map[ID]chan struct{})
	k.mu.Unlock()

	for _, stop := range stops {
		close(stop)
	}
}
