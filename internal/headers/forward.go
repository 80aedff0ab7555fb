// Package headers implements header forwarding (spec §4.8), the cookie
// jar, and the URI relocator (spec §4.9).
package headers

import "strings"

// Group is one of the forwarding matrix's row keys (spec §4.8).
type Group string

const (
	Identity       Group = "IDENTITY"
	Capabilities   Group = "CAPABILITIES"
	Cookie         Group = "COOKIE"
	Other          Group = "OTHER"
	Link           Group = "LINK"
	Secure         Group = "SECURE"
	SSL            Group = "SSL"
	Transformation Group = "TRANSFORMATION"
	CORS           Group = "CORS"
)

// Mode is the forwarding action for a Group.
type Mode int

const (
	No Mode = iota
	Yes
	Mangle
	Both
)

// Matrix is the per-view header_forward configuration: a Mode for every Group.
type Matrix map[Group]Mode

func (m Matrix) Mode(g Group) Mode {
	if mode, ok := m[g]; ok {
		return mode
	}

	return No
}

// hopByHop lists headers that are always dropped at the forwarding boundary
// regardless of the matrix (spec §4.8, §8 invariant "hop-by-hop headers
// never appear on the outbound side").
var hopByHop = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

func IsHopByHop(name string) bool {
	return hopByHop[strings.ToLower(name)]
}

// secureBengPrefix is the SECURE group's allowlist prefix: every
// "X-CM4all-Beng-*" header except the SSL-peer ones, which are their own
// group (spec §4.8 "SECURE forwards only X-CM4all-Beng-* except SSL-peer
// headers").
const secureBengPrefix = "x-cm4all-beng-"

func isSSLPeerHeader(lname string) bool {
	return strings.HasPrefix(lname, "x-cm4all-beng-peer-")
}

// GroupOf classifies a request or response header name into a forwarding
// Group. Headers that don't match any special-cased group fall into Other.
func GroupOf(name string) Group {
	lname := strings.ToLower(name)

	switch {
	case lname == "via" || lname == "x-forwarded-for" || lname == "host" || lname == "user-agent":
		return Identity
	case lname == "cookie" || lname == "set-cookie" || lname == "set-cookie2":
		return Cookie
	case lname == "location":
		return Link
	case lname == "x-cm4all-view":
		return Transformation
	case lname == "origin" || lname == "access-control-request-method" || lname == "access-control-request-headers":
		return CORS
	case isSSLPeerHeader(lname):
		return SSL
	case strings.HasPrefix(lname, secureBengPrefix):
		return Secure
	default:
		return Other
	}
}

// Forward decides whether name (with its value unchanged) should cross the
// forwarding boundary for the given matrix, independent of the
// MANGLE-specific rewriting that Forwarder.Apply performs for IDENTITY,
// COOKIE and LINK.
func Forward(matrix Matrix, name string) bool {
	if IsHopByHop(name) {
		return false
	}

	group := GroupOf(name)
	mode := matrix.Mode(group)

	return mode != No
}
