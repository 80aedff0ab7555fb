package balancer

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrAllCandidatesFailed is returned when every address in the list failed
// to connect (spec §4.6 "If all candidates fail, return a StockError").
var ErrAllCandidatesFailed = errors.New("balancer: all candidate addresses failed")

// Connector dials one candidate address, returning an item on success.
type Connector[I any] func(ctx context.Context, addr string) (I, error)

// TcpBalancer chooses one address from a TranslateResponse's address list
// per call, honoring stickiness, the FailureTable, and Bulldog health
// (spec §4.6).
type TcpBalancer[I any] struct {
	failures *FailureTable
	bulldog  Bulldog

	mu      sync.Mutex
	rrIndex map[string]int

	lastMu sync.Mutex
	last   map[string]string // sticky key (e.g. session id) -> last address used, for GetLast
}

func New[I any](failures *FailureTable, bulldog Bulldog) *TcpBalancer[I] {
	if bulldog == nil {
		bulldog = StaticBulldog{}
	}

	return &TcpBalancer[I]{
		failures: failures,
		bulldog:  bulldog,
		rrIndex:  make(map[string]int),
		last:     make(map[string]string),
	}
}

// Get tries each candidate in list, in the order its sticky mode dictates,
// skipping addresses with an unexpired failure mark or unhealthy bulldog
// status, until connect succeeds or every candidate has been tried. Fading
// candidates are tried only after every non-fading one.
// setCookie is non-empty only when StickyCookie minted a fresh index.
func (b *TcpBalancer[I]) Get(ctx context.Context, list AddressList, sticky StickyContext, connect Connector[I]) (item I, addr string, setCookie string, err error) {
	var zero I

	if len(list.Addresses) == 0 {
		return zero, "", "", ErrAllCandidatesFailed
	}

	rr := b.nextRoundRobin(list)
	candidates, setCookie := order(list, sticky, rr)

	preferred := make([]string, 0, len(candidates))
	var fading []string
	for _, a := range candidates {
		if b.bulldog.Fading(a) {
			fading = append(fading, a)
		} else {
			preferred = append(preferred, a)
		}
	}
	candidates = append(preferred, fading...)

	for _, a := range candidates {
		if b.failures.IsFailed(a) {
			continue
		}

		if !b.bulldog.Healthy(a) {
			continue
		}

		item, err := connect(ctx, a)
		if err != nil {
			b.failures.MarkFailed(a)
			log.Debug().Str("addr", a).Err(err).Msg("balancer: candidate connect failed")

			continue
		}

		return item, a, setCookie, nil
	}

	return zero, "", "", ErrAllCandidatesFailed
}

// GetLast returns the address most recently selected for stickyKey (e.g. a
// session id), for callers that need to repeat the same choice outside the
// normal Get flow.
func (b *TcpBalancer[I]) GetLast(stickyKey string) (string, bool) {
	b.lastMu.Lock()
	defer b.lastMu.Unlock()

	a, ok := b.last[stickyKey]

	return a, ok
}

// Remember records addr as the last address chosen for stickyKey.
func (b *TcpBalancer[I]) Remember(stickyKey, addr string) {
	b.lastMu.Lock()
	defer b.lastMu.Unlock()

	b.last[stickyKey] = addr
}

func (b *TcpBalancer[I]) nextRoundRobin(list AddressList) int {
	if list.StickyMode != StickyNone {
		return 0
	}

	key := list.key()

	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.rrIndex[key]
	b.rrIndex[key] = (idx + 1) % len(list.Addresses)

	return idx
}
