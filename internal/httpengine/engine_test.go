package httpengine

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	resp           *Response
	err            error
	loggedStatus   int
	loggedBytes    int64
	lastReq        *Request
	connErrs       []error
	connClosed     []ConnID
}

func (h *recordingHandler) HandleRequest(_ context.Context, req *Request) (*Response, error) {
	h.lastReq = req
	return h.resp, h.err
}

func (h *recordingHandler) LogRequest(_ *Request, status int, bodyBytesOut int64) {
	h.loggedStatus = status
	h.loggedBytes = bodyBytesOut
}

func (h *recordingHandler) ConnectionClosed(connID ConnID) {
	h.connClosed = append(h.connClosed, connID)
}

func (h *recordingHandler) ConnectionError(_ ConnID, err error) {
	h.connErrs = append(h.connErrs, err)
}

func TestEngine_ServeWritesResponseBody(t *testing.T) {
	body := "hello world"
	h := &recordingHandler{
		resp: &Response{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": []string{"text/plain"}},
			Body:   bytes.NewReader([]byte(body)),
			Size:   int64(len(body)),
		},
	}

	e := New(Config{}, h)

	req := httptest.NewRequest(http.MethodGet, "/foo", http.NoBody)
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
	assert.Equal(t, http.StatusOK, h.loggedStatus)
	assert.Equal(t, int64(len(body)), h.loggedBytes)
}

func TestEngine_ServeHeadDiscardsBody(t *testing.T) {
	body := "hello world"
	h := &recordingHandler{
		resp: &Response{
			Status: http.StatusOK,
			Header: http.Header{"Content-Length": []string{"11"}},
			Body:   bytes.NewReader([]byte(body)),
			Size:   int64(len(body)),
		},
	}

	e := New(Config{}, h)

	req := httptest.NewRequest(http.MethodHead, "/foo", http.NoBody)
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEngine_ServeWebDAVVerbPassesThrough(t *testing.T) {
	h := &recordingHandler{
		resp: &Response{Status: http.StatusMultiStatus, Size: 0},
	}

	e := New(Config{}, h)

	req := httptest.NewRequest("PROPFIND", "/dav/", http.NoBody)
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	require.NotNil(t, h.lastReq)
	assert.Equal(t, "PROPFIND", h.lastReq.Method)
}

func TestEngine_ServeExpectOtherThan100ContinueFails(t *testing.T) {
	h := &recordingHandler{resp: &Response{Status: http.StatusOK}}
	e := New(Config{}, h)

	req := httptest.NewRequest(http.MethodPost, "/foo", http.NoBody)
	req.Header.Set("Expect", "something-else")

	resp, err := e.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusExpectationFailed, resp.StatusCode)
}

func TestEngine_ServeHandlerErrorReturns500(t *testing.T) {
	h := &recordingHandler{err: assertError("boom")}
	e := New(Config{}, h)

	req := httptest.NewRequest(http.MethodGet, "/foo", http.NoBody)
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Len(t, h.connErrs, 1)
}

type assertError string

func (e assertError) Error() string { return string(e) }

func TestEngine_DropSomeNoConnectionsLogsWarning(t *testing.T) {
	h := &recordingHandler{resp: &Response{Status: http.StatusOK}}
	e := New(Config{}, h)

	assert.Equal(t, 0, e.DropSome())
}
