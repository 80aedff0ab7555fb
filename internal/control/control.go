// Package control implements the control-UDP listener (spec §6): a
// net.ListenUDP reader parsing the same framing internal/translate uses,
// dispatching TCACHE_INVALIDATE into internal/tcache.Cache.InvalidateSite
// and dropping every other opcode after logging it. Grounded on the
// teacher's internal/ldap_cache.Manager.Run(ctx)/Stop() goroutine-lifecycle
// pattern, generalized from a polling loop to a UDP receive loop.
package control

import (
	"bytes"
	"context"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/netresearch/bengproxy/internal/tcache"
	"github.com/netresearch/bengproxy/internal/wire"
)

// maxDatagram bounds one read; a control datagram bigger than this indicates
// a confused peer, matching wire.MaxPayload's rationale.
const maxDatagram = 8192

// Listener receives control-UDP datagrams and folds them into Cache.
type Listener struct {
	Cache *tcache.Cache

	conn *net.UDPConn
}

// Listen binds addr and returns a Listener dispatching invalidations into
// cache, ready for Run.
func Listen(addr string, cache *tcache.Cache) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	return &Listener{Cache: cache, conn: conn}, nil
}

// Run reads datagrams until ctx is cancelled, at which point it closes the
// socket and returns nil (spec §5's "cancellation is always initiated by
// the owner").
func (l *Listener) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = l.conn.Close()
	}()

	buf := make([]byte, maxDatagram)

	for {
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			log.Warn().Err(err).Msg("control: read failed")

			continue
		}

		l.handle(buf[:n])
	}
}

func (l *Listener) handle(datagram []byte) {
	r := wire.NewReader(bytes.NewReader(datagram))

	for {
		pkt, err := r.ReadPacket()
		if err != nil {
			return
		}

		switch pkt.Command {
		case wire.TCacheInvalidate:
			site := string(pkt.Payload)

			n := l.Cache.InvalidateSite(site)

			log.Debug().Str("site", site).Int("removed", n).Msg("control: TCACHE_INVALIDATE")
		case wire.DumpPools:
			log.Debug().Msg("control: DUMP_POOLS received, ignored")
		default:
			log.Debug().Int("command", int(pkt.Command)).Msg("control: unhandled opcode dropped")
		}
	}
}

// Close releases the socket without waiting for ctx cancellation, used by
// callers that never started Run (e.g. tests probing Listen alone).
func (l *Listener) Close() error {
	return l.conn.Close()
}
