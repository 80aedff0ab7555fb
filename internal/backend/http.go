package backend

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"
)

// HTTPAdapter sends requests to a plain-HTTP upstream over a connection
// dialed through the balancer (spec §4.7 "HTTP ... via a dedicated
// net/http.Transport dialed through the balancer's DialContext"). Header
// composition (forward_request_headers, §4.8) happens upstream of this
// package, in the orchestrator, since it needs the session jar and view.
// Send only transmits req.Headers as given.
type HTTPAdapter struct {
	Scheme string // "http" or "https"
	Dial   func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewHTTPAdapter builds an adapter whose Transport dials exclusively
// through dial, so every connection is accounted for by the stock/balancer
// layer rather than Go's default pooling.
func NewHTTPAdapter(scheme string, dial func(ctx context.Context, network, addr string) (net.Conn, error)) *HTTPAdapter {
	return &HTTPAdapter{Scheme: scheme, Dial: dial}
}

func (a *HTTPAdapter) transport() *http.Transport {
	return &http.Transport{
		DialContext:           a.Dial,
		DisableKeepAlives:     true, // the stock/balancer owns connection reuse, not net/http
		ResponseHeaderTimeout: 0,    // timeouts are enforced by the caller's ctx
	}
}

// Send drives one request to addr and returns the upstream response or an
// UpstreamError classified per spec §4.7.
func (a *HTTPAdapter) Send(ctx context.Context, addr string, req Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, a.Scheme+"://"+addr+req.Path, req.Body)
	if err != nil {
		return nil, &UpstreamError{Class: Unspecified, Err: err}
	}

	httpReq.Header = req.Headers
	httpReq.Host = req.Headers.Get("Host")

	client := &http.Client{Transport: a.transport()}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Class: classify(err), Err: err}
	}

	log.Debug().Str("addr", addr).Int("status", resp.StatusCode).Msg("backend: http response received")

	return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: resp.Body}, nil
}

// classify maps a net/http transport error to an UpstreamError class
// (spec §4.7 "REFUSED, PREMATURE, IO, GARBAGE, TIMEOUT, UNSPECIFIED").
func classify(err error) ErrorClass {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return Refused
		}

		return Premature
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}

	return IO
}
