package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/netresearch/bengproxy/internal/errkind"
	"github.com/netresearch/bengproxy/internal/headers"
	"github.com/netresearch/bengproxy/internal/httpengine"
)

// HandleRequest implements httpengine.Handler: it is the orchestrator's
// entry point for one parsed HTTP request (spec §4.2).
func (inst *Instance) HandleRequest(ctx context.Context, req *httpengine.Request) (*httpengine.Response, error) {
	st, err := inst.newRequestState(req)
	if err != nil {
		return nil, err
	}

	if err := inst.translateLoop(ctx, st); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, errkind.Wrap(errkind.Cancelled, "request cancelled", ctx.Err())
		}

		return inst.errorResponse(st, err)
	}

	resp, err := inst.dispatch(ctx, st)
	if err != nil {
		return inst.errorResponse(st, err)
	}

	return resp, nil
}

func (inst *Instance) errorResponse(st *requestState, err error) (*httpengine.Response, error) {
	logUpstreamError(st.method, st.uri, err)

	status := statusForError(err)
	body := inst.errorBody(status, "")

	header := make(http.Header)
	inst.injectResponseHeaders(st, header)
	header.Set("Content-Type", "text/html; charset=utf-8")
	header.Set("Content-Length", headers.FormatContentLength(int64(len(body))))

	return &httpengine.Response{Status: status, Header: header, Body: bytes.NewReader(body), Size: int64(len(body))}, nil
}

// LogRequest implements httpengine.Handler (spec §4.1's access-log hook).
func (inst *Instance) LogRequest(req *httpengine.Request, status int, bodyBytesOut int64) {
	log.Info().
		Str("method", req.Method).
		Str("uri", req.RequestURI).
		Str("host", req.Host).
		Str("remote", req.RemoteAddr).
		Int("status", status).
		Int64("bytes", bodyBytesOut).
		Msg("request")
}

// ConnectionClosed implements httpengine.Handler; nothing process-wide needs
// releasing per-connection beyond the engine's own Registry bookkeeping.
func (inst *Instance) ConnectionClosed(connID httpengine.ConnID) {}

// ConnectionError implements httpengine.Handler (spec §4.1 "ConnectionError").
func (inst *Instance) ConnectionError(connID httpengine.ConnID, err error) {
	log.Debug().Err(err).Uint64("conn_id", uint64(connID)).Msg("orchestrator: connection error")
}

// newRequestState parses req into the per-request working state the
// translate loop threads through (spec §4.2 "State (per request)").
func (inst *Instance) newRequestState(req *httpengine.Request) (*requestState, error) {
	u, err := url.ParseRequestURI(req.RequestURI)
	if err != nil {
		return nil, errkind.Wrap(errkind.Protocol, "malformed request-target", err)
	}

	remoteIP := req.RemoteAddr
	if host, _, err := net.SplitHostPort(remoteIP); err == nil {
		remoteIP = host
	}

	st := &requestState{
		method:     req.Method,
		uri:        req.RequestURI,
		path:       u.Path,
		query:      u.RawQuery,
		host:       req.Host,
		remoteIP:   remoteIP,
		userAgent:  req.Header.Get("User-Agent"),
		headers:    req.Header,
		body:       req.Body,
		contentLen: req.ContentLength,
	}

	cookieValue := ""
	if c, err := (&http.Request{Header: req.Header}).Cookie(inst.sessionCookieName(req.Host)); err == nil {
		cookieValue = c.Value
	}

	inst.resolveSession(st, cookieValue, u.Query().Get("session"))

	if st.haveSessionID {
		lease, ok, err := inst.Sessions.Get(st.sessionID)
		if err == nil && ok {
			st.lease = lease
		}
	}

	return st, nil
}
