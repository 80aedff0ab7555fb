package httpengine

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// serve is the single catch-all middleware every request flows through. It
// bridges a fasthttp/fiber *fiber.Ctx to the Handler contract, implementing
// the §4.1 response-pipeline rules (100-continue, HEAD body discard,
// chunked-vs-length, Upgrade hijack) that fasthttp doesn't itself apply the
// way the orchestrator needs.
func (e *Engine) serve(c *fiber.Ctx) error {
	fctx := c.Context()
	conn := fctx.Conn()

	e.Registry.MarkFirst(conn)

	req := e.buildRequest(c)

	if req.Expect100Continue && !strings.EqualFold(c.Get(fiber.HeaderExpect), "100-continue") {
		// A non-"100-continue" Expect value: expect_failed, 417, no body read.
		e.Registry.UpdateScore(conn, fiber.StatusExpectationFailed)
		return c.SendStatus(fiber.StatusExpectationFailed)
	}

	resp, err := e.handler.HandleRequest(c.Context(), req)
	if err != nil {
		e.Registry.UpdateScore(conn, fiber.StatusInternalServerError)
		e.handler.ConnectionError(req.ConnID, err)
		log.Debug().Err(err).Str("method", req.Method).Str("uri", req.RequestURI).Msg("httpengine: handler error")

		return c.Status(fiber.StatusInternalServerError).SendString("internal error")
	}

	status := e.writeResponse(c, req, resp)
	e.Registry.UpdateScore(conn, status)

	var bodyBytesOut int64
	if resp != nil {
		bodyBytesOut = resp.Size
	}

	e.handler.LogRequest(req, status, bodyBytesOut)

	return nil
}

func (e *Engine) buildRequest(c *fiber.Ctx) *Request {
	fctx := c.Context()

	header := make(http.Header)
	c.Request().Header.VisitAll(func(k, v []byte) {
		header.Add(string(k), string(v))
	})

	var body io.Reader
	if b := c.Body(); len(b) > 0 {
		body = bytes.NewReader(b)
	}

	contentLength := int64(c.Request().Header.ContentLength())

	httpVersion := "HTTP/1.1"
	if !fctx.Request.Header.IsHTTP11() {
		httpVersion = "HTTP/1.0"
	}

	return &Request{
		ConnID:            connIDFor(e.Registry, fctx.Conn()),
		Method:            c.Method(),
		RequestURI:        c.OriginalURL(),
		Host:              c.Hostname(),
		RemoteAddr:        c.Context().RemoteAddr().String(),
		HTTPVersion:       httpVersion,
		Header:            header,
		Body:              body,
		ContentLength:     contentLength,
		Expect100Continue: c.Get(fiber.HeaderExpect) != "",
		Upgrade:           c.Get(fiber.HeaderUpgrade),
	}
}

// writeResponse applies resp to c and returns the status actually sent.
func (e *Engine) writeResponse(c *fiber.Ctx, req *Request, resp *Response) int {
	if resp == nil {
		c.Status(fiber.StatusNoContent)
		return fiber.StatusNoContent
	}

	for name, values := range resp.Header {
		for _, v := range values {
			c.Set(name, v)
		}
	}

	c.Status(resp.Status)

	if resp.Hijack != nil {
		c.Context().Hijack(func(conn net.Conn) {
			resp.Hijack(conn)
		})

		return resp.Status
	}

	// 1xx/204/304 carry no body regardless of what the caller supplied.
	if isEmptyBodyStatus(resp.Status) {
		return resp.Status
	}

	if req.Method == http.MethodHead {
		// Body discarded, Content-Length header already set above per
		// spec §4.1 "HEAD responses pass a Content-Length but have their
		// body discarded" / §8 scenario 6.
		if closer, ok := resp.Body.(interface{ Close() error }); ok {
			_ = closer.Close()
		}

		return resp.Status
	}

	if resp.Body == nil {
		return resp.Status
	}

	if resp.Size >= 0 {
		if err := c.SendStream(resp.Body, int(resp.Size)); err != nil {
			log.Debug().Err(err).Msg("httpengine: write response body failed")
		}

		return resp.Status
	}

	// Unknown length: fiber/fasthttp chunks the body automatically when no
	// Content-Length is set and the connection stays keep-alive-eligible
	// (spec §4.1 "emit Transfer-Encoding: chunked").
	if err := c.SendStream(resp.Body); err != nil {
		log.Debug().Err(err).Msg("httpengine: write chunked response body failed")
	}

	return resp.Status
}

func isEmptyBodyStatus(status int) bool {
	if status >= 100 && status < 200 {
		return true
	}

	return status == fiber.StatusNoContent || status == fiber.StatusNotModified
}

func connIDFor(r *Registry, conn net.Conn) ConnID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byConn[conn]; ok {
		return e.ID
	}

	return 0
}
