// Package tcache implements the translation cache (spec §4.4): a bounded,
// in-process store keyed by a string derived from the outgoing
// TranslateRequest, vary-aware lookup, BASE walk-up, and invalidate/site
// scoped eviction. Grounded on original_source/src/tcache.cxx's algorithm
// and the teacher's internal/ldap_cache/manager.go TTL-sweep shape.
package tcache

import (
	"fmt"
	"strings"

	"github.com/netresearch/bengproxy/internal/translate"
)

// Key computes the base cache key for req (spec §4.4 "Key construction").
// ERROR_DOCUMENT requests are namespaced by status so a 404 page for /x
// never collides with the plain response for /x.
func Key(req translate.Request) string {
	var base string

	switch {
	case req.ErrorDocumentStatus != 0:
		base = fmt.Sprintf("ERR%d_%s", req.ErrorDocumentStatus, req.URI)
	case req.WidgetType != "":
		base = req.WidgetType
	default:
		base = req.URI
	}

	var b strings.Builder
	b.WriteString(base)

	if len(req.Check) > 0 {
		b.WriteString("|CHECK=")
		b.Write(req.Check)
	}

	if len(req.Auth) > 0 {
		b.WriteString("|AUTH=")
		b.Write(req.Auth)
	}

	return b.String()
}

// varyValue reads the request field named by dimension (a Vary dimension
// name as used in TranslateResponse.Vary, e.g. "HOST", "QUERY_STRING").
// Returns ok=false for a dimension this cache does not track.
func varyValue(req translate.Request, dimension string) ([]byte, bool) {
	switch dimension {
	case "HOST":
		return []byte(req.Host), true
	case "LISTENER_TAG":
		return []byte(req.ListenerTag), true
	case "SESSION":
		return req.Session, true
	case "LANGUAGE":
		return []byte(req.Language), true
	case "USER_AGENT":
		return []byte(req.UserAgent), true
	case "QUERY_STRING":
		return []byte(req.QueryString), true
	case "REMOTE_HOST":
		return []byte(req.RemoteHost), true
	default:
		return nil, false
	}
}
