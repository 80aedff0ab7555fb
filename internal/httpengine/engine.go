package httpengine

import (
	"context"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Config bounds one Engine's timeouts and identity (spec §4.1 "Timeouts").
type Config struct {
	ReadTimeout   time.Duration // default 30s
	WriteTimeout  time.Duration // default 30s
	IdleTimeout   time.Duration // default 30s (keepalive idle)
	HeaderTimeout time.Duration // default 20s, enforced by trackedListener.watchHeaderTimeout

	// MaxConnections is not read by the engine: nothing on the accept path
	// calls DropSome, so no connection cap is enforced automatically.
	MaxConnections int
}

func (c *Config) setDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}

	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}

	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}

	if c.HeaderTimeout <= 0 {
		c.HeaderTimeout = 20 * time.Second
	}
}

// Engine is the HttpServerEngine (spec §4.1): a fiber.App configured for
// the teacher's style of transport setup (createFiberApp in
// internal/web/server.go), plus the ConnID registry and drop policy (§4.10)
// layered on top via a tracked net.Listener.
type Engine struct {
	cfg      Config
	handler  Handler
	Registry *Registry
	app      *fiber.App
	ln       net.Listener
}

// New builds an Engine dispatching every accepted request to handler.
func New(cfg Config, handler Handler) *Engine {
	cfg.setDefaults()

	e := &Engine{
		cfg:      cfg,
		handler:  handler,
		Registry: NewRegistry(),
	}

	e.app = fiber.New(fiber.Config{
		AppName:               "bengproxy",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           cfg.IdleTimeout,
		DisableKeepalive:      false,
		// The orchestrator forwards status/headers itself; fiber's default
		// error handler would otherwise JSON-encode panics, which never
		// happens on our request path since Handler returns (resp, error).
		ErrorHandler: e.handleFiberError,
	})

	// A single catch-all middleware, not per-verb routes: fiber's Use()
	// matches every method string, so the WebDAV verb extensions (§4.1)
	// reach e.serve exactly like GET/POST without a fixed method
	// table to maintain.
	e.app.Use(e.serve)

	return e
}

// ListenAndServe accepts on addr, tracking every connection in e.Registry.
func (e *Engine) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	e.ln = newTrackedListener(ln, e.Registry, e.cfg.HeaderTimeout)

	log.Info().Str("addr", addr).Msg("httpengine: listening")

	return e.app.Listener(e.ln)
}

// CloseGraceful disables keep-alive and drains in-flight requests (spec
// §4.1 "CloseGraceful ... the connection drains and closes").
func (e *Engine) CloseGraceful(ctx context.Context) error {
	return e.app.ShutdownWithContext(ctx)
}

// DropSome runs the §4.10 connection-drop policy when the caller observes
// Registry.Len() >= MaxConnections, logging when nothing could be dropped.
func (e *Engine) DropSome() int {
	n := e.Registry.DropSome()
	if n == 0 {
		log.Warn().Msg("httpengine: drop policy found nothing to close, refusing new connection")
	}

	return n
}

func (e *Engine) handleFiberError(c *fiber.Ctx, err error) error {
	log.Debug().Err(err).Msg("httpengine: fiber-level error")
	return c.Status(fiber.StatusInternalServerError).SendString("internal error")
}
