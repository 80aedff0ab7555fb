package headers

import (
	"net/http"
	"strconv"
	"strings"
)

// Forwarder applies a Matrix plus the MANGLE-specific rewrites (Via/XFF,
// Cookie, Location) described in spec §4.8. It is stateless apart from the
// jar/relocator it is handed per call; one Forwarder is shared process-wide.
type Forwarder struct {
	LocalHost string // our own host, appended to Via under IDENTITY=MANGLE
}

// ForwardRequest builds the outbound request header set from the inbound
// client headers, applying matrix and, when IDENTITY=MANGLE, synthesizing
// Via/X-Forwarded-For (spec §4.8).
func (f *Forwarder) ForwardRequest(in http.Header, matrix Matrix, clientIP string) http.Header {
	out := make(http.Header, len(in))

	for name, values := range in {
		if !Forward(matrix, name) {
			continue
		}

		group := GroupOf(name)
		mode := matrix.Mode(group)

		if group == Cookie && mode == Mangle {
			// Every inbound Cookie header is dropped here; the caller adds
			// a jar-synthesized Cookie header separately via WithJarCookie.
			continue
		}

		for _, v := range values {
			out.Add(name, v)
		}
	}

	if matrix.Mode(Identity) == Mangle {
		f.mangleIdentity(out, in, clientIP)
	}

	return out
}

func (f *Forwarder) mangleIdentity(out, in http.Header, clientIP string) {
	via := in.Get("Via")
	if via != "" {
		via += ", "
	}

	via += "1.1 " + f.LocalHost
	out.Set("Via", via)

	xff := in.Get("X-Forwarded-For")
	if xff != "" {
		xff += ", "
	}

	xff += clientIP
	out.Set("X-Forwarded-For", xff)
}

// WithJarCookie appends a Cookie header synthesized from jar's entries
// matching host/path, used for outbound widget/backend requests under
// COOKIE=MANGLE (spec §4.8).
func WithJarCookie(out http.Header, jar *CookieJar, host, path string) {
	cookies := jar.Match(host, path)
	if len(cookies) == 0 {
		return
	}

	value := ""

	for i, c := range cookies {
		if i > 0 {
			value += "; "
		}

		value += c.Name + "=" + c.Value
	}

	out.Set("Cookie", value)
}

// ForwardResponse builds the outbound-to-client response header set from
// the backend's response headers. Set-Cookie under COOKIE=MANGLE is stored
// into jar instead of being forwarded, unless the cookie's name differs
// from sessionCookieName (spec §4.8).
func (f *Forwarder) ForwardResponse(in http.Header, matrix Matrix, jar *CookieJar, sessionCookieName, host, path string) http.Header {
	out := make(http.Header, len(in))

	for name, values := range in {
		if !Forward(matrix, name) {
			continue
		}

		group := GroupOf(name)
		mode := matrix.Mode(group)

		if group == Cookie && mode == Mangle {
			for _, v := range values {
				c := parseSetCookie(v, host, path)
				jar.Set(c)

				if c.Name != sessionCookieName {
					out.Add(name, v)
				}
			}

			continue
		}

		if group == Link && mode == Mangle {
			// Caller rewrites Location explicitly via Relocate; skip here
			// so it isn't double-forwarded verbatim.
			continue
		}

		for _, v := range values {
			out.Add(name, v)
		}
	}

	return out
}

// parseSetCookie is a minimal Set-Cookie2 parser sufficient for the
// name/value/domain/path/secure fields the jar tracks.
func parseSetCookie(raw, defaultHost, defaultPath string) Cookie {
	c := Cookie{Domain: defaultHost, Path: defaultPath}

	for i, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		name, value, _ := strings.Cut(part, "=")

		if i == 0 {
			c.Name, c.Value = name, value
			continue
		}

		switch strings.ToLower(name) {
		case "domain":
			c.Domain = value
		case "path":
			c.Path = value
		case "secure":
			c.Secure = true
		}
	}

	return c
}

// FormatContentLength is a small helper used by the response pipeline when
// it must emit an explicit Content-Length (e.g. HEAD responses, §4.1).
func FormatContentLength(n int64) string {
	return strconv.FormatInt(n, 10)
}
