package backend

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// WAS is the project-specific protocol (spec §4.7 "was.go ... a minimal
// framed codec"). The real protocol multiplexes control/input/output over
// three file descriptors passed via SCM_RIGHTS; this client instead
// multiplexes the same {command, payload} packets over one stream
// connection, which preserves the command sequence and header/body framing
// the orchestrator depends on without an FD-passing transport.
type wasCommand uint8

const (
	wasRequest wasCommand = iota
	wasMethod
	wasURI
	wasParam
	wasHeader
	wasStatus
	wasNoData
	wasData
	wasBody
	wasEnd
)

// WASAdapter drives the simplified WAS framing over a leased connection.
type WASAdapter struct {
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewWASAdapter(dial func(ctx context.Context, network, addr string) (net.Conn, error)) *WASAdapter {
	return &WASAdapter{Dial: dial}
}

func (a *WASAdapter) Send(ctx context.Context, addr string, req Request) (*Response, error) {
	conn, err := a.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, &UpstreamError{Class: Refused, Err: err}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := writeWASRequest(conn, req); err != nil {
		conn.Close()
		return nil, &UpstreamError{Class: IO, Err: err}
	}

	status, headers, hasBody, err := readWASHead(conn)
	if err != nil {
		conn.Close()
		return nil, &UpstreamError{Class: classifyWAS(err), Err: err}
	}

	if !hasBody {
		conn.Close()
		return &Response{Status: status, Headers: headers, Body: http.NoBody}, nil
	}

	return &Response{Status: status, Headers: headers, Body: newWASBodyReader(conn)}, nil
}

func writeWASPacket(w io.Writer, cmd wasCommand, payload []byte) error {
	var hdr [5]byte
	hdr[0] = byte(cmd)
	binary.BigEndian.PutUint32(hdr[1:5], uint32(len(payload)))

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	_, err := w.Write(payload)

	return err
}

func writeWASRequest(w io.Writer, req Request) error {
	if err := writeWASPacket(w, wasRequest, nil); err != nil {
		return err
	}

	if err := writeWASPacket(w, wasMethod, []byte(req.Method)); err != nil {
		return err
	}

	if err := writeWASPacket(w, wasURI, []byte(req.Path)); err != nil {
		return err
	}

	for name, values := range req.Headers {
		for _, v := range values {
			if err := writeWASPacket(w, wasHeader, []byte(name+": "+v)); err != nil {
				return err
			}
		}
	}

	if req.Body == nil {
		return writeWASPacket(w, wasNoData, nil)
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}

	if err := writeWASPacket(w, wasData, nil); err != nil {
		return err
	}

	return writeWASPacket(w, wasBody, data)
}

func readWASPacket(r io.Reader) (wasCommand, []byte, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}

	length := binary.BigEndian.Uint32(hdr[1:5])
	payload := make([]byte, length)

	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}

	return wasCommand(hdr[0]), payload, nil
}

func readWASHead(r io.Reader) (int, http.Header, bool, error) {
	headers := http.Header{}
	status := 200

	for {
		cmd, payload, err := readWASPacket(r)
		if err != nil {
			return 0, nil, false, err
		}

		switch cmd {
		case wasStatus:
			if n, err := strconv.Atoi(string(payload)); err == nil {
				status = n
			}
		case wasHeader:
			name, value, ok := strings.Cut(string(payload), ": ")
			if ok {
				headers.Add(name, value)
			}
		case wasNoData:
			return status, headers, false, nil
		case wasData:
			return status, headers, true, nil
		case wasEnd:
			return status, headers, false, nil
		default:
			return 0, nil, false, fmt.Errorf("backend/was: unexpected packet %d before body decision", cmd)
		}
	}
}

type wasBodyReader struct {
	conn  net.Conn
	br    *bufio.Reader
	buf   []byte
	ended bool
}

func newWASBodyReader(conn net.Conn) *wasBodyReader {
	return &wasBodyReader{conn: conn, br: bufio.NewReader(conn)}
}

func (r *wasBodyReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.ended {
			return 0, io.EOF
		}

		cmd, payload, err := readWASPacket(r.br)
		if err != nil {
			return 0, err
		}

		switch cmd {
		case wasBody:
			r.buf = payload
		case wasEnd:
			r.ended = true
		default:
			return 0, fmt.Errorf("backend/was: unexpected packet %d in body stream", cmd)
		}
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]

	return n, nil
}

func (r *wasBodyReader) Close() error {
	return r.conn.Close()
}

func classifyWAS(err error) ErrorClass {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return Premature
	}

	return Garbage
}
