package httpengine

import (
	"context"
	"io"
	"net/http"
)

// Request is the engine's parsed request, handed to Handler.HandleRequest
// (spec §4.1 "new(socket, ...) returns a Connection that will
// asynchronously deliver handler.HandleRequest(req, cancel_ptr)").
type Request struct {
	ConnID ConnID

	Method       string // includes WebDAV verbs; never restricted by the engine
	RequestURI   string // full request-target, including query string
	Host         string
	RemoteAddr   string
	HTTPVersion  string // "HTTP/1.0" or "HTTP/1.1"
	Header       http.Header
	Body         io.Reader // nil when the request carries no body
	ContentLength int64    // -1 when unknown (chunked)

	Expect100Continue bool
	Upgrade           string // non-empty when an Upgrade header was present
}

// Response is one queued response (spec §4.1 "Respond(req, status,
// headers, body). Exactly one response per request").
type Response struct {
	Status int
	Header http.Header
	Body   io.Reader // nil is legal for empty-body statuses
	// Size is the body length if known, or -1 to stream with
	// Transfer-Encoding: chunked (spec §4.1 "Response pipeline").
	Size int64

	// Hijack, if non-nil, takes over the raw connection after headers are
	// written (Upgrade pass-through, spec §4.1). The engine calls it with
	// the hijacked connection and stops managing it.
	Hijack func(conn io.ReadWriteCloser)
}

// Handler is the upstream consumer of parsed requests (spec §4.1's
// handler.HandleRequest / handler.LogRequest / handler.ConnectionClosed /
// handler.ConnectionError contract, adapted to Go's (result, error) idiom
// instead of callback pairs).
type Handler interface {
	HandleRequest(ctx context.Context, req *Request) (*Response, error)
	LogRequest(req *Request, status int, bodyBytesOut int64)
	ConnectionClosed(connID ConnID)
	ConnectionError(connID ConnID, err error)
}
