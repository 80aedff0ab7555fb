package httpengine

import (
	"net"
	"time"
)

// trackedListener registers every accepted connection with a Registry and
// unregisters it on Close, so the fiber/fasthttp transport never needs to
// know about connection scoring (spec §4.10). It also arms a header-timeout
// watchdog per connection (spec §4.1 "header_timeout").
type trackedListener struct {
	net.Listener
	registry      *Registry
	headerTimeout time.Duration
}

func newTrackedListener(ln net.Listener, registry *Registry, headerTimeout time.Duration) *trackedListener {
	return &trackedListener{Listener: ln, registry: registry, headerTimeout: headerTimeout}
}

func (l *trackedListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	tc := &trackedConn{Conn: conn, registry: l.registry}
	l.registry.Register(tc)

	if l.headerTimeout > 0 {
		go l.watchHeaderTimeout(tc)
	}

	return tc, nil
}

// watchHeaderTimeout closes conn if its first request hasn't reached FIRST
// within headerTimeout of accept. fasthttp's own ReadTimeout covers a
// connection's steady-state reads but not the gap between accept and the
// first byte of a request line.
func (l *trackedListener) watchHeaderTimeout(conn net.Conn) {
	time.Sleep(l.headerTimeout)

	if score, ok := l.registry.ScoreOf(conn); ok && score == ScoreNew {
		_ = conn.Close()
	}
}

// trackedConn is the exact net.Conn value fasthttp reads/writes and the one
// RequestCtx.Conn() returns, so it doubles as the Registry's map key
// without a side channel.
type trackedConn struct {
	net.Conn
	registry *Registry
}

func (c *trackedConn) Close() error {
	c.registry.Unregister(c)
	return c.Conn.Close()
}
