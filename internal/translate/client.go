package translate

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netresearch/bengproxy/internal/wire"
)

// Dial connect/write timeout and the inter-packet read timeout for one
// translate transaction (spec §4.3 "Request/Response timing").
const (
	writeTimeout = 10 * time.Second
	readTimeout  = 60 * time.Second
)

// Dialer opens a connection to the translation server. In production this
// is net.Dialer.DialContext against a UNIX socket or TCP address; tests
// substitute an in-process pipe.
type Dialer func(ctx context.Context) (net.Conn, error)

// Client talks the translation protocol to a single upstream translation
// server, one connection per transaction (spec §4.3: "a translate request is
// a short-lived connection, not a persistent session").
type Client struct {
	dial Dialer
}

func NewClient(dial Dialer) *Client {
	return &Client{dial: dial}
}

// NewTCPClient returns a Client dialing addr (host:port or a filesystem
// path for a UNIX socket) per call.
func NewTCPClient(network, addr string) *Client {
	d := &net.Dialer{}

	return NewClient(func(ctx context.Context) (net.Conn, error) {
		return d.DialContext(ctx, network, addr)
	})
}

// Translate runs one request/response transaction. It opens a fresh
// connection, writes the BEGIN..END request packets under writeTimeout,
// then reads response packets, resetting readTimeout between each one,
// until END or an error.
func (c *Client) Translate(ctx context.Context, req Request) (*Response, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("translate: dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return nil, fmt.Errorf("translate: set write deadline: %w", err)
	}

	w := wire.NewWriter(conn)
	if err := EncodeRequest(w, req); err != nil {
		return nil, fmt.Errorf("translate: encode request: %w", err)
	}

	log.Debug().Str("uri", req.URI).Str("host", req.Host).Msg("translate request sent")

	r := wire.NewReader(&deadlineReader{conn: conn})

	resp, err := DecodeResponse(r)
	if err != nil {
		return nil, fmt.Errorf("translate: decode response: %w", err)
	}

	log.Debug().Int("status", resp.Status).Msg("translate response received")

	return resp, nil
}

// deadlineReader resets the connection's read deadline before every Read
// call, implementing the "readTimeout between packets, not for the whole
// transaction" rule (spec §4.3).
type deadlineReader struct {
	conn net.Conn
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return 0, err
	}

	return d.conn.Read(p)
}
