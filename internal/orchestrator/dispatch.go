package orchestrator

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/netresearch/bengproxy/internal/backend"
	"github.com/netresearch/bengproxy/internal/balancer"
	"github.com/netresearch/bengproxy/internal/errkind"
	"github.com/netresearch/bengproxy/internal/headers"
	"github.com/netresearch/bengproxy/internal/httpengine"
	"github.com/netresearch/bengproxy/internal/resource"
	"github.com/netresearch/bengproxy/internal/session"
	"github.com/netresearch/bengproxy/internal/translate"
)

// errNotFound is returned when a translate turn resolves to no usable
// address and no synthesized status/redirect either (spec §4.2 step 6
// "404 message").
var errNotFound = errkind.New(errkind.NotFound, "no resource address resolved")

// autoCompressThreshold is the minimum body size auto-gzip/deflate kicks in
// for, per spec §4.2 "only if available body length unknown or >= 512".
const autoCompressThreshold = 512

// dispatch resolves the terminal action of a completed translate loop into
// one httpengine.Response, implementing §4.2's response_dispatch funnel:
// synthesized redirect/status/file responses bypass auto-compression; a real
// backend body goes through auto-compression. No view transformation
// (PROCESS, PROCESS_CSS, PROCESS_TEXT, FILTER) is applied to any response.
func (inst *Instance) dispatch(ctx context.Context, st *requestState) (*httpengine.Response, error) {
	resp := st.tResp

	if status := resp.Status; status != 0 && resp.Redirect == "" && !resp.Bounce {
		return inst.synthesizedStatus(st, status)
	}

	if resp.Redirect != "" || resp.Bounce {
		return inst.synthesizedRedirect(st, resp)
	}

	addr := st.terminalAddress()

	if addr.Kind == resource.LocalFile {
		return inst.fileOrForward(st, addr)
	}

	if addr.Kind == resource.None {
		return nil, errNotFound
	}

	return inst.networkDispatch(ctx, st, addr)
}

func (inst *Instance) fileOrForward(st *requestState, addr resource.Address) (*httpengine.Response, error) {
	out, err := inst.serveLocalFile(st, addr)
	if err != nil {
		return nil, err
	}

	inst.injectResponseHeaders(st, out.Header)

	return out, nil
}

func (inst *Instance) networkDispatch(ctx context.Context, st *requestState, addr resource.Address) (*httpengine.Response, error) {
	var body io.ReadCloser
	if st.body != nil {
		body = io.NopCloser(st.body)
	}

	req := backend.Request{
		Method:  st.method,
		Path:    st.path + queryTail(st.query),
		Headers: inst.Forwarder.ForwardRequest(st.headers, st.tResp.DefaultView().RequestHeaderForward, st.remoteIP),
		Body:    body,
	}

	if st.tResp.DefaultView().RequestHeaderForward.Mode(headers.Cookie) == headers.Mangle {
		headers.WithJarCookie(req.Headers, inst.jarFor(st), st.host, st.path)
	}

	beresp, err := inst.sendToNetworkBackend(ctx, addr, balancer.StickyContext{ClientIP: st.remoteIP}, req)
	if err != nil {
		return nil, err
	}

	return inst.finishFromBackend(st, beresp)
}

func (inst *Instance) finishFromBackend(st *requestState, beresp *backend.Response) (*httpengine.Response, error) {
	header := inst.Forwarder.ForwardResponse(
		beresp.Headers,
		st.tResp.DefaultView().ResponseHeaderForward,
		inst.jarFor(st),
		inst.sessionCookieName(st.host),
		st.host,
		st.path,
	)

	var bodyBytes []byte

	if beresp.Body != nil {
		defer beresp.Body.Close()

		b, err := io.ReadAll(beresp.Body)
		if err != nil {
			return nil, err
		}

		bodyBytes = b
	}

	inst.injectResponseHeaders(st, header)

	bodyBytes, encoding := maybeCompress(bodyBytes, header, st.headers.Get("Accept-Encoding"), st.tResp.AutoGzip, st.tResp.AutoDeflate)
	if encoding != "" {
		header.Set("Content-Encoding", encoding)
	}

	header.Set("Content-Length", headers.FormatContentLength(int64(len(bodyBytes))))

	return &httpengine.Response{
		Status: beresp.Status,
		Header: header,
		Body:   bytes.NewReader(bodyBytes),
		Size:   int64(len(bodyBytes)),
	}, nil
}

// maybeCompress gzip/deflates body when the translation response enabled the
// corresponding flag, the client's Accept-Encoding admits it, the body
// clears autoCompressThreshold, and it isn't already encoded (spec §4.2 "do
// auto-gzip/auto-deflate if enabled").
func maybeCompress(body []byte, header http.Header, acceptEncoding string, autoGzip, autoDeflate bool) ([]byte, string) {
	if !autoGzip && !autoDeflate {
		return body, ""
	}

	if len(body) < autoCompressThreshold {
		return body, ""
	}

	if header.Get("Content-Encoding") != "" {
		return body, ""
	}

	switch {
	case autoGzip && strings.Contains(acceptEncoding, "gzip"):
		var buf bytes.Buffer

		w := gzip.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return body, ""
		}

		if err := w.Close(); err != nil {
			return body, ""
		}

		return buf.Bytes(), "gzip"
	case autoDeflate && strings.Contains(acceptEncoding, "deflate"):
		var buf bytes.Buffer

		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return body, ""
		}

		if _, err := w.Write(body); err != nil {
			return body, ""
		}

		if err := w.Close(); err != nil {
			return body, ""
		}

		return buf.Bytes(), "deflate"
	default:
		return body, ""
	}
}

// injectResponseHeaders adds Server, Date (unless already present) and the
// session Set-Cookie (spec §4.2 "Inject Server ... Date ... Set-Cookie").
func (inst *Instance) injectResponseHeaders(st *requestState, header http.Header) {
	header.Set("Server", inst.ServerToken)

	if header.Get("Date") == "" {
		header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}

	if st.lease == nil {
		return
	}

	name := inst.sessionCookieName(st.host)
	value := session.FormatID(st.lease.Session.ID)
	attrs := session.CookieAttributes(st.path, inst.Config.CookieSecure, inst.Config.CookieDomain)

	header.Add("Set-Cookie", name+"="+value+attrs)
}

func (inst *Instance) jarFor(st *requestState) *headers.CookieJar {
	if st.lease == nil {
		return headers.NewCookieJar()
	}

	if st.lease.Session.Cookies == nil {
		st.lease.Session.Cookies = headers.NewCookieJar()
	}

	return st.lease.Session.Cookies
}

func (inst *Instance) synthesizedStatus(st *requestState, status int) (*httpengine.Response, error) {
	header := make(http.Header)
	inst.injectResponseHeaders(st, header)

	body := inst.errorBody(status, "")
	header.Set("Content-Type", "text/html; charset=utf-8")
	header.Set("Content-Length", headers.FormatContentLength(int64(len(body))))

	return &httpengine.Response{Status: status, Header: header, Body: bytes.NewReader(body), Size: int64(len(body))}, nil
}

func (inst *Instance) synthesizedRedirect(st *requestState, resp *translate.Response) (*httpengine.Response, error) {
	header := make(http.Header)

	status := 302
	if resp.Status != 0 {
		status = resp.Status
	}

	header.Set("Location", resp.Redirect)
	inst.injectResponseHeaders(st, header)
	header.Set("Content-Length", "0")

	return &httpengine.Response{Status: status, Header: header, Size: 0}, nil
}

func queryTail(query string) string {
	if query == "" {
		return ""
	}

	return "?" + query
}
