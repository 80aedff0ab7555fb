// Package orchestrator implements the request lifecycle (spec §4.2): the
// translate loop, response dispatch funnel, and the glue wiring
// internal/translate, internal/tcache, internal/session,
// internal/balancer/internal/backend and internal/headers into one
// per-worker Instance, grounded on the teacher's internal/web.App
// (internal/web/server.go's NewApp wiring one process's LDAP client,
// cache and session store together).
package orchestrator

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netresearch/bengproxy/internal/backend"
	"github.com/netresearch/bengproxy/internal/balancer"
	"github.com/netresearch/bengproxy/internal/config"
	"github.com/netresearch/bengproxy/internal/headers"
	"github.com/netresearch/bengproxy/internal/session"
	"github.com/netresearch/bengproxy/internal/tcache"
	"github.com/netresearch/bengproxy/internal/translate"
	"github.com/netresearch/bengproxy/internal/version"
)

// Instance is one worker process's complete runtime: one translate client,
// one cache, one session store, one balancer and failure table shared by
// every backend protocol, all shared across every request this worker handles (spec §5 "single-
// threaded cooperative per process").
type Instance struct {
	Config *config.Config

	Translate *translate.Client
	Cache     *tcache.Cache
	Sessions  *session.Store
	Keepalive *session.Keepalive
	Forwarder *headers.Forwarder

	Failures *balancer.FailureTable
	Bulldog  balancer.Bulldog
	Balancer *balancer.TcpBalancer[net.Conn]

	LhttpStock *backend.LhttpStock

	httpAdapter  *backend.HTTPAdapter
	ajpAdapter   *backend.AJPAdapter
	fcgiAdapter  *backend.FCGIAdapter
	wasAdapter   *backend.WASAdapter
	lhttpAdapter *backend.LHTTPAdapter

	ServerToken string

	errorPages *errorPageCache
}

// NewInstance wires one worker's components from cfg (spec §4.2, §4.3,
// §4.4, §4.5, §4.6, §4.7 glued together).
func NewInstance(cfg *config.Config) (*Instance, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "bengproxy"
	}

	inst := &Instance{
		Config:      cfg,
		Translate:   translate.NewTCPClient("tcp", cfg.TranslationServerAddr),
		Cache:       tcache.New(),
		Keepalive:   session.NewKeepalive(),
		Forwarder:   &headers.Forwarder{LocalHost: hostname},
		Failures:    balancer.NewFailureTable(),
		Bulldog:     balancer.StaticBulldog{},
		ServerToken: "bengproxy/" + version.FormatVersion(),
		errorPages:  newErrorPageCache(30 * time.Second),
	}

	inst.Balancer = balancer.New[net.Conn](inst.Failures, inst.Bulldog)

	sessionBackend := session.NewBackend(session.BackendConfig{
		Persist: cfg.PersistSessions,
		DBPath:  cfg.SessionPath,
	})
	inst.Sessions = session.NewStore(sessionBackend, cfg.SessionDuration)

	inst.LhttpStock = backend.NewLhttpStock(cfg.LhttpSocketDir)

	dialer := &net.Dialer{}
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, addr)
	}

	inst.httpAdapter = backend.NewHTTPAdapter("http", dial)
	inst.ajpAdapter = backend.NewAJPAdapter(dial)
	inst.fcgiAdapter = backend.NewFCGIAdapter(dial)
	inst.wasAdapter = backend.NewWASAdapter(dial)
	inst.lhttpAdapter = backend.NewLHTTPAdapter(inst.LhttpStock)

	log.Info().Str("translation_server", cfg.TranslationServerAddr).Msg("orchestrator: instance ready")

	return inst, nil
}

// Run starts every background job this Instance owns (presently the
// translation cache's TTL sweep) and blocks until ctx is canceled,
// following the teacher's ldap_cache.Manager.Run(ctx) shape: one call,
// started in its own goroutine by the caller, stopped by canceling the
// same ctx it was given. Per-session external-session-manager keepalive
// pings and the LHTTP process stock's idle reaper run on their own
// lifecycles (session.Keepalive.Start/Stop per lease, stock.Map's
// internal sweepLoop) since they are scoped narrower than one Instance.
func (inst *Instance) Run(ctx context.Context) {
	inst.Cache.Run(ctx)
}

// Close releases pooled resources that outlive ctx cancellation: running
// keepalive pings and LHTTP worker processes. Call after Run's ctx has
// been canceled and Run has returned.
func (inst *Instance) Close() {
	inst.Keepalive.StopAll()
	inst.LhttpStock.Close()
}

// sessionCookieName resolves the effective cookie name for host, honoring
// the dynamic-per-host CRC16 suffix (spec §4.5).
func (inst *Instance) sessionCookieName(host string) string {
	return session.CookieName(inst.Config.SessionCookieName, host, inst.Config.DynamicSessionCookie)
}

func (inst *Instance) now() time.Time { return time.Now() }
