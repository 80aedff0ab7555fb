package translate

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/netresearch/bengproxy/internal/headers"
	"github.com/netresearch/bengproxy/internal/resource"
	"github.com/netresearch/bengproxy/internal/wire"
)

// EncodeRequest writes one BEGIN..END transaction for req (spec §4.3
// "Request").
func EncodeRequest(w *wire.Writer, req Request) error {
	if err := w.WriteEmpty(wire.Begin); err != nil {
		return err
	}

	if req.ErrorDocumentStatus != 0 {
		if err := w.WriteEmpty(wire.ErrorDocument); err != nil {
			return err
		}

		if err := w.WritePacket(wire.Status, []byte{byte(req.ErrorDocumentStatus)}); err != nil {
			return err
		}
	}

	strFields := []struct {
		cmd wire.Command
		val string
	}{
		{wire.RemoteHost, req.RemoteHost},
		{wire.Host, req.Host},
		{wire.UserAgent, req.UserAgent},
		{wire.Language, req.Language},
		{wire.URI, req.URI},
		{wire.Args, req.Args},
		{wire.QueryString, req.QueryString},
		{wire.WidgetType, req.WidgetType},
		{wire.ListenerTag, req.ListenerTag},
		{wire.User, req.User},
		{wire.DirectoryIndex, req.DirectoryIndex},
		{wire.FileNotFound, req.FileNotFound},
		{wire.Enotdir, req.Enotdir},
		{wire.ReadFile, req.ReadFile},
	}

	for _, f := range strFields {
		if f.val == "" {
			continue
		}

		if err := w.WritePacket(f.cmd, []byte(f.val)); err != nil {
			return err
		}
	}

	byteFields := []struct {
		cmd wire.Command
		val []byte
	}{
		{wire.Session, req.Session},
		{wire.Check, req.Check},
		{wire.Auth, req.Auth},
		{wire.InternalRedirect, req.InternalRedirect},
		{wire.WantFullURI, req.WantFullURI},
	}

	for _, f := range byteFields {
		if len(f.val) == 0 {
			continue
		}

		if err := w.WritePacket(f.cmd, f.val); err != nil {
			return err
		}
	}

	for _, p := range req.Param {
		if err := w.WritePacket(wire.Param, []byte(p)); err != nil {
			return err
		}
	}

	for _, s := range req.ProbePathSuffixes {
		if err := w.WritePacket(wire.ProbePathSuffixes, []byte(s)); err != nil {
			return err
		}
	}

	return w.WriteEmpty(wire.End)
}

// decodeState tracks the response-packet state machine's cursor (spec §4.3
// "Stateful packets ... start a new address record"; DESIGN.md Open
// Question 1 "apply to the current cursor, fail on misplacement").
type decodeState struct {
	resp *Response

	currentView *View
	hasAddress  bool
}

// DecodeResponse reads packets from r until END, applying each to build a
// Response. Returns an error naming the offending packet on misplacement or
// an unknown command (spec §4.3).
func DecodeResponse(r *wire.Reader) (*Response, error) {
	resp := &Response{}
	st := &decodeState{resp: resp}

	// Implicit default view; address/transformation packets before any
	// VIEW packet attach here (spec §4.3 "the first view is the default").
	def := &View{RequestHeaderForward: headers.Matrix{}, ResponseHeaderForward: headers.Matrix{}}
	resp.Views = append(resp.Views, *def)
	st.currentView = &resp.Views[0]

	for {
		p, err := r.ReadPacket()
		if err == io.EOF {
			return nil, fmt.Errorf("translate: connection closed before END")
		}

		if err != nil {
			return nil, fmt.Errorf("translate: %w", err)
		}

		if p.Command == wire.End {
			break
		}

		if err := st.apply(p); err != nil {
			return nil, err
		}
	}

	finalizeViews(resp)

	return resp, nil
}

func (st *decodeState) apply(p wire.Packet) error {
	switch p.Command {
	case wire.Status:
		switch len(p.Payload) {
		case 1:
			st.resp.Status = int(p.Payload[0])
		case 2:
			st.resp.Status = int(binary.LittleEndian.Uint16(p.Payload))
		default:
			return fmt.Errorf("translate: STATUS: bad payload length %d", len(p.Payload))
		}
	case wire.Path:
		st.startAddress(resource.Address{Kind: resource.LocalFile, Path: string(p.Payload)})
	case wire.Proxy:
		st.startAddress(resource.Address{Kind: resource.HTTP, Host: string(p.Payload)})
	case wire.Ajp:
		st.startAddress(resource.Address{Kind: resource.AJP, Host: string(p.Payload)})
	case wire.Cgi:
		st.startAddress(resource.Address{Kind: resource.CGI, Path: string(p.Payload)})
	case wire.FastCGI:
		st.startAddress(resource.Address{Kind: resource.FastCGI, Host: string(p.Payload)})
	case wire.Was:
		st.startAddress(resource.Address{Kind: resource.WAS, Path: string(p.Payload)})
	case wire.Pipe:
		st.startAddress(resource.Address{Kind: resource.Pipe, Path: string(p.Payload)})
	case wire.Nfs:
		st.startAddress(resource.Address{Kind: resource.NFS, Path: string(p.Payload)})
	case wire.PathInfo:
		if err := st.requireAddress("PATH_INFO"); err != nil {
			return err
		}

		st.currentView.Address.PathInfo = string(p.Payload)
	case wire.DocumentRoot:
		if err := st.requireAddress("DOCUMENT_ROOT"); err != nil {
			return err
		}

		st.currentView.Address.DocumentRoot = string(p.Payload)
	case wire.Interpreter:
		if err := st.requireAddress("INTERPRETER"); err != nil {
			return err
		}

		st.currentView.Address.Interpreter = string(p.Payload)
	case wire.Action:
		if err := st.requireAddress("ACTION"); err != nil {
			return err
		}

		st.currentView.Address.Action = string(p.Payload)
	case wire.Home:
		if err := st.requireAddress("HOME"); err != nil {
			return err
		}

		st.currentView.Address.Home = string(p.Payload)
	case wire.JailCGI:
		if err := st.requireAddress("JAILCGI"); err != nil {
			return err
		}

		st.currentView.Address.JailCGI = true
	case wire.ScriptName:
		if err := st.requireAddress("SCRIPT_NAME"); err != nil {
			return err
		}

		st.currentView.Address.ScriptName = string(p.Payload)
	case wire.Pair, wire.Append:
		if err := st.requireAddress("PAIR/APPEND"); err != nil {
			return err
		}

		st.currentView.Address.Params = append(st.currentView.Address.Params, string(p.Payload))
	case wire.View:
		name := string(p.Payload)
		nv := View{Name: name, RequestHeaderForward: headers.Matrix{}, ResponseHeaderForward: headers.Matrix{}}
		st.resp.Views = append(st.resp.Views, nv)
		st.currentView = &st.resp.Views[len(st.resp.Views)-1]
		st.hasAddress = st.currentView.Address.Kind != resource.None
	case wire.Regex:
		st.resp.Regex = string(p.Payload)
	case wire.InverseRegex:
		st.resp.InverseRegex = true
	case wire.Base:
		st.resp.Base = string(p.Payload)
	case wire.TestPath:
		st.resp.TestPath = string(p.Payload)
	case wire.Redirect:
		st.resp.Redirect = string(p.Payload)
	case wire.Bounce:
		st.resp.Bounce = true
	case wire.Scheme:
		st.resp.Scheme = string(p.Payload)
	case wire.Host:
		st.resp.Host = string(p.Payload)
	case wire.URI:
		st.resp.URI = string(p.Payload)
	case wire.MaxAge:
		st.resp.MaxAge = decodeSeconds(p.Payload)
	case wire.ExpiresRelative:
		st.resp.ExpiresRelative = decodeSeconds(p.Payload)
	case wire.Vary:
		st.resp.Vary = append(st.resp.Vary, string(p.Payload))
	case wire.Invalidate:
		st.resp.Invalidate = append(st.resp.Invalidate, string(p.Payload))
	case wire.Site:
		st.resp.Site = string(p.Payload)
	case wire.Realm:
		st.resp.Realm = string(p.Payload)
	case wire.RealmFromAuthBase:
		st.resp.RealmFromAuthBase = true
	case wire.Session:
		st.resp.Session = append([]byte(nil), p.Payload...)
	case wire.User:
		st.resp.User = string(p.Payload)
	case wire.UserMaxAge:
		st.resp.UserMaxAge = decodeSeconds(p.Payload)
	case wire.Language:
		st.resp.Language = string(p.Payload)
	case wire.DiscardSession:
		st.resp.DiscardSession = true
	case wire.SecureCookie:
		st.resp.SecureCookie = true
	case wire.CookieDomain:
		st.resp.CookieDomain = string(p.Payload)
	case wire.CookieHost:
		st.resp.CookieHost = string(p.Payload)
	case wire.CookiePath:
		st.resp.CookiePath = string(p.Payload)
	case wire.Untrusted:
		if err := validateUntrusted(p.Payload); err != nil {
			return err
		}

		st.resp.Untrusted = string(p.Payload)
	case wire.UntrustedPrefix:
		if err := validateUntrusted(p.Payload); err != nil {
			return err
		}

		st.resp.UntrustedPrefix = string(p.Payload)
	case wire.UntrustedSiteSuffix:
		if err := validateUntrusted(p.Payload); err != nil {
			return err
		}

		st.resp.UntrustedSiteSuffix = string(p.Payload)
	case wire.ExternalSessionManager:
		st.resp.ExternalSessionManager = string(p.Payload)
	case wire.ExternalSessionKeepalive:
		st.resp.ExternalSessionKeepalive = decodeSeconds(p.Payload)
	case wire.WWWAuthenticate:
		st.resp.WWWAuthenticate = string(p.Payload)
	case wire.AuthenticationInfo:
		st.resp.AuthenticationInfo = string(p.Payload)
	case wire.ContentType:
		st.resp.ContentType = string(p.Payload)
	case wire.AutoGzip:
		st.resp.AutoGzip = true
	case wire.AutoDeflate:
		st.resp.AutoDeflate = true
	case wire.Check:
		st.resp.Check = append([]byte(nil), p.Payload...)
	case wire.Auth:
		st.resp.Auth = append([]byte(nil), p.Payload...)
	case wire.Header:
		return st.addHeader(&st.resp.AddedResponseHeaders, p.Payload)
	case wire.RequestHeader:
		return st.addHeader(&st.resp.AddedRequestHeaders, p.Payload)
	case wire.RequestHeaderForward:
		return applyForwardPacket(p.Payload, &st.currentView.RequestHeaderForward)
	case wire.ResponseHeaderForward:
		return applyForwardPacket(p.Payload, &st.currentView.ResponseHeaderForward)
	case wire.Process:
		st.addTransform(Transformation{Kind: TransformProcess})
	case wire.ProcessCSS:
		st.addTransform(Transformation{Kind: TransformProcessCSS})
	case wire.ProcessText:
		st.addTransform(Transformation{Kind: TransformProcessText})
	case wire.Filter:
		st.addTransform(Transformation{Kind: TransformFilter})
	case wire.FourXX:
		if err := st.requireTransform("FOUR_XX"); err != nil {
			return err
		}

		st.lastTransform().FourXX = true
	case wire.RevealUser:
		if err := st.requireTransform("REVEAL_USER"); err != nil {
			return err
		}

		st.lastTransform().RevealUser = true
	case wire.Want:
		st.resp.Want = append(st.resp.Want, string(p.Payload))
	case wire.Previous:
		st.resp.Previous = true
	case wire.WantFullURI:
		st.resp.WantFullURI = true
	case wire.DirectoryIndex:
		st.resp.DirectoryIndex = string(p.Payload)
	case wire.FileNotFound:
		st.resp.FileNotFound = string(p.Payload)
	case wire.Enotdir:
		st.resp.Enotdir = string(p.Payload)
	case wire.ProbePathSuffixes:
		st.resp.ProbeSuffixes = append(st.resp.ProbeSuffixes, string(p.Payload))
	case wire.ReadFile:
		st.resp.ReadFile = string(p.Payload)
	case wire.ErrorDocument:
		st.resp.ErrorDocument = true
	default:
		return fmt.Errorf("translate: unknown translation packet %d", p.Command)
	}

	return nil
}

func (st *decodeState) startAddress(addr resource.Address) {
	st.currentView.Address = addr
	st.hasAddress = true
}

func (st *decodeState) requireAddress(name string) error {
	if !st.hasAddress {
		return fmt.Errorf("translate: %s without a preceding address", name)
	}

	return nil
}

func (st *decodeState) addTransform(t Transformation) {
	st.currentView.Transformations = append(st.currentView.Transformations, t)
}

func (st *decodeState) lastTransform() *Transformation {
	ts := st.currentView.Transformations
	return &ts[len(ts)-1]
}

func (st *decodeState) requireTransform(name string) error {
	if len(st.currentView.Transformations) == 0 {
		return fmt.Errorf("translate: %s without a preceding transformation", name)
	}

	return nil
}

func decodeSeconds(payload []byte) time.Duration {
	var n int64
	for _, b := range payload {
		n = n<<8 | int64(b)
	}

	return time.Duration(n) * time.Second
}

func validateUntrusted(payload []byte) error {
	s := string(payload)
	if s == "" {
		return fmt.Errorf("translate: UNTRUSTED* value must not be empty")
	}

	if s[0] == '.' || s[len(s)-1] == '.' {
		return fmt.Errorf("translate: UNTRUSTED* value must not start/end with '.'")
	}

	return nil
}

// addHeader parses a "name:value" HEADER/REQUEST_HEADER packet and adds it
// to *dst, initializing dst on first use.
func (st *decodeState) addHeader(dst *http.Header, payload []byte) error {
	name, value, ok := cutColon(payload)
	if !ok {
		return fmt.Errorf("translate: HEADER packet missing ':' separator")
	}

	if headers.IsHopByHop(string(name)) {
		return fmt.Errorf("translate: HEADER packet names a hop-by-hop header %q", name)
	}

	if *dst == nil {
		*dst = http.Header{}
	}

	dst.Add(string(name), string(value))

	return nil
}

func cutColon(b []byte) (name, value []byte, ok bool) {
	for i, c := range b {
		if c == ':' {
			return b[:i], b[i+1:], true
		}
	}

	return b, nil, false
}

func applyForwardPacket(payload []byte, m *headers.Matrix) error {
	name, value, ok := cutColon(payload)
	if !ok {
		return fmt.Errorf("translate: *_HEADER_FORWARD packet missing ':' separator")
	}

	mode, err := parseMode(value)
	if err != nil {
		return err
	}

	(*m)[headers.Group(name)] = mode

	return nil
}

func parseMode(b []byte) (headers.Mode, error) {
	switch string(b) {
	case "no":
		return headers.No, nil
	case "yes":
		return headers.Yes, nil
	case "mangle":
		return headers.Mangle, nil
	case "both":
		return headers.Both, nil
	default:
		return headers.No, fmt.Errorf("translate: unknown header_forward mode %q", b)
	}
}

// finalizeViews implements spec §4.3 "Views": when the default view lacks
// an address but the top-level response has one, copy it in; later views
// inherit fields from the default view when unset.
func finalizeViews(resp *Response) {
	if len(resp.Views) == 0 {
		return
	}

	def := &resp.Views[0]
	if def.Address.Kind == resource.None && resp.Address.Kind != resource.None {
		def.Address = resp.Address
	}

	for i := 1; i < len(resp.Views); i++ {
		v := &resp.Views[i]
		if v.Address.Kind == resource.None {
			v.Address = def.Address
		}

		if len(v.RequestHeaderForward) == 0 {
			v.RequestHeaderForward = def.RequestHeaderForward
		}

		if len(v.ResponseHeaderForward) == 0 {
			v.ResponseHeaderForward = def.ResponseHeaderForward
		}
	}

	resp.Address = def.Address
}
