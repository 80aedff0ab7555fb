package headers

import (
	"net/url"
	"strings"
)

// Relocate rewrites an internally-visible uri (typically a Location header
// from a backend that only knows its own internal host/path) into the
// externally-visible one, per spec §4.9. Returns ("", false) if any of the
// four steps fails; the header should then be passed through unmodified or
// dropped by the caller's policy.
func Relocate(uri, internalHost, internalPath, externalScheme, externalHost, externalPath, base string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", false
	}

	if u.Host != "" && u.Host != internalHost {
		return "", false
	}

	uriPath := u.Path
	if !strings.HasPrefix(uriPath, "/") {
		return "", false
	}

	tail, ok := strings.CutPrefix(externalPath, base)
	if !ok {
		return "", false
	}

	prefix, ok := strings.CutSuffix(internalPath, tail)
	if !ok {
		return "", false
	}

	if tail != "" && !strings.HasSuffix(prefix, "/") {
		return "", false
	}

	tail2, ok := strings.CutPrefix(uriPath, prefix)
	if !ok {
		return "", false
	}

	return externalScheme + "://" + externalHost + base + tail2, true
}
