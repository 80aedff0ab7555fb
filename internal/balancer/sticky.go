package balancer

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// StickyMode selects how TcpBalancer.Get orders candidate addresses (spec
// §4.6 "address_list.sticky_mode").
type StickyMode int

const (
	StickyNone StickyMode = iota
	StickyFailover
	StickySourceIP
	StickySessionModulo
	StickyCookie
	StickyJVMRoute
)

// AddressList is one translate response's resolved candidate set plus its
// stickiness policy.
type AddressList struct {
	Addresses []string
	// Routes[i] is the JVM-route tag for Addresses[i] (StickyJVMRoute
	// only); left nil/empty for every other mode.
	Routes     []string
	StickyMode StickyMode
}

// key identifies this list for round-robin bookkeeping, stable across
// calls as long as the address set itself is unchanged.
func (l AddressList) key() string {
	return strings.Join(l.Addresses, ",")
}

// StickyContext carries the per-request inputs the sticky modes consult.
type StickyContext struct {
	ClientIP    string
	CookieValue string // SESSION_MODULO/COOKIE/JVM_ROUTE: the sticky cookie's raw value
}

// order returns the candidate addresses in the sequence Get should try,
// given the list's sticky mode, the request context, and the next
// round-robin start index for StickyNone. setCookie is non-empty only for
// StickyCookie when no existing cookie value could be honored (spec §4.6
// "if absent, generate one ... set-cookie on the response").
func order(list AddressList, ctx StickyContext, rrStart int) (addrs []string, setCookie string) {
	n := len(list.Addresses)
	if n == 0 {
		return nil, ""
	}

	switch list.StickyMode {
	case StickyFailover:
		return list.Addresses, ""
	case StickySourceIP:
		idx := int(hashString(ctx.ClientIP) % uint64(n))
		return rotate(list.Addresses, idx), ""
	case StickySessionModulo:
		idx := moduloIndex(ctx.CookieValue, n)
		return rotate(list.Addresses, idx), ""
	case StickyCookie:
		if idx, ok := cookieIndex(ctx.CookieValue, n); ok {
			return rotate(list.Addresses, idx), ""
		}

		idx := int(hashString(ctx.ClientIP) % uint64(n))
		return rotate(list.Addresses, idx), strconv.Itoa(idx + 1)
	case StickyJVMRoute:
		if idx, ok := routeIndex(ctx.CookieValue, list.Routes); ok {
			return rotate(list.Addresses, idx), ""
		}

		return list.Addresses, ""
	default: // StickyNone
		return rotate(list.Addresses, rrStart%n), ""
	}
}

func rotate(addrs []string, start int) []string {
	n := len(addrs)
	out := make([]string, n)

	for i := 0; i < n; i++ {
		out[i] = addrs[(start+i)%n]
	}

	return out
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))

	return h.Sum64()
}

// moduloIndex parses the whole cookieValue as a non-negative integer and
// takes it modulo n (spec §4.6 SESSION_MODULO), falling back to a hash when
// the value is not a non-negative integer.
func moduloIndex(cookieValue string, n int) int {
	if v, err := strconv.Atoi(cookieValue); err == nil && v >= 0 {
		return v % n
	}

	return int(hashString(cookieValue) % uint64(n))
}

// cookieIndex interprets cookieValue as a direct 1..N index (spec §4.6
// "COOKIE: the cookie value itself is the 1..N index").
func cookieIndex(cookieValue string, n int) (int, bool) {
	v, err := strconv.Atoi(cookieValue)
	if err != nil || v < 1 || v > n {
		return 0, false
	}

	return v - 1, true
}

// routeIndex extracts the route suffix after the last '.' in cookieValue
// (Tomcat-style "sessionid.node1") and matches it against routes (spec
// §4.6 "JVM_ROUTE: the route suffix of the cookie selects the node").
func routeIndex(cookieValue string, routes []string) (int, bool) {
	idx := strings.LastIndexByte(cookieValue, '.')
	if idx < 0 {
		return 0, false
	}

	suffix := cookieValue[idx+1:]

	for i, r := range routes {
		if r == suffix {
			return i, true
		}
	}

	return 0, false
}
