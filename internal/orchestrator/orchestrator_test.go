package orchestrator

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netresearch/bengproxy/internal/balancer"
	"github.com/netresearch/bengproxy/internal/config"
	"github.com/netresearch/bengproxy/internal/headers"
	"github.com/netresearch/bengproxy/internal/resource"
	"github.com/netresearch/bengproxy/internal/session"
	"github.com/netresearch/bengproxy/internal/tcache"
	"github.com/netresearch/bengproxy/internal/translate"
	"github.com/netresearch/bengproxy/internal/wire"
)

// newTestInstance builds a minimally-wired Instance for orchestrator tests:
// a real tcache/session.Store (in-memory backend) and a translate.Client
// whose Dialer fails outright, since every test either pre-populates the
// cache (avoiding a live Translate call) or installs its own Dialer via
// scriptedTranslateServer.
func newTestInstance(t *testing.T) *Instance {
	t.Helper()

	cfg := &config.Config{
		SessionCookieName: "bsess",
		SessionDuration:   time.Hour,
		CookieSecure:      false,
		StockMaxIdleTime:  time.Minute,
	}

	inst := &Instance{
		Config:      cfg,
		Translate:   translate.NewClient(func(context.Context) (net.Conn, error) { return nil, errDialNotWired }),
		Cache:       tcache.New(),
		Sessions:    session.NewStore(session.NewBackend(session.BackendConfig{}), cfg.SessionDuration),
		Keepalive:   session.NewKeepalive(),
		Forwarder:   &headers.Forwarder{LocalHost: "bengproxy-test"},
		Failures:    balancer.NewFailureTable(),
		Bulldog:     balancer.StaticBulldog{},
		ServerToken: "bengproxy/test",
		errorPages:  newErrorPageCache(time.Minute),
	}

	inst.Balancer = balancer.New[net.Conn](inst.Failures, inst.Bulldog)

	return inst
}

type dialNotWiredErr struct{}

func (dialNotWiredErr) Error() string { return "translate dial not wired in this test" }

var errDialNotWired = dialNotWiredErr{}

// scriptedTranslateServer replays responses, one per connection, in order:
// the Nth dial gets the Nth response in responses. Used for tests that
// drive more than one translate-loop turn.
func scriptedTranslateServer(t *testing.T, responses []*translate.Response) translate.Dialer {
	t.Helper()

	next := 0

	return func(context.Context) (net.Conn, error) {
		require.Less(t, next, len(responses), "scriptedTranslateServer: ran out of scripted responses")

		resp := responses[next]
		next++

		clientConn, serverConn := net.Pipe()

		go func() {
			r := wire.NewReader(serverConn)
			for {
				p, err := r.ReadPacket()
				if err != nil || p.Command == wire.End {
					break
				}
			}

			w := wire.NewWriter(serverConn)
			require.NoError(t, encodeScriptedResponse(w, resp))
			serverConn.Close()
		}()

		return clientConn, nil
	}
}

// encodeScriptedResponse writes the subset of Response fields this test
// package's fixtures actually populate.
func encodeScriptedResponse(w *wire.Writer, resp *translate.Response) error {
	if resp.Status != 0 {
		if err := w.WritePacket(wire.Status, []byte{byte(resp.Status), byte(resp.Status >> 8)}); err != nil {
			return err
		}
	}

	if resp.User != "" {
		if err := w.WritePacket(wire.User, []byte(resp.User)); err != nil {
			return err
		}
	}

	if resp.ReadFile != "" {
		if err := w.WritePacket(wire.ReadFile, []byte(resp.ReadFile)); err != nil {
			return err
		}
	}

	for _, suffix := range resp.ProbeSuffixes {
		if err := w.WritePacket(wire.ProbePathSuffixes, []byte(suffix)); err != nil {
			return err
		}
	}

	if resp.Address.Kind == resource.LocalFile {
		if err := w.WritePacket(wire.Path, []byte(resp.Address.Path)); err != nil {
			return err
		}
	}

	if resp.MaxAge > 0 {
		if err := w.WritePacket(wire.MaxAge, []byte(durationSecondsBytes(resp.MaxAge))); err != nil {
			return err
		}
	}

	return w.WriteEmpty(wire.End)
}

func durationSecondsBytes(d time.Duration) []byte {
	secs := uint32(d.Seconds())
	return []byte{byte(secs >> 24), byte(secs >> 16), byte(secs >> 8), byte(secs)}
}
