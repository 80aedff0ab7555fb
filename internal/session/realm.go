package session

import (
	"strings"

	"github.com/netresearch/bengproxy/internal/translate"
)

// DeriveRealm implements spec §4.5's realm derivation order: explicit realm
// from the response; else realm_from_auth_base (the AUTH token bytes used
// verbatim as the realm); else the lowercased Host; else empty.
func DeriveRealm(resp *translate.Response, host string) string {
	if resp.Realm != "" {
		return resp.Realm
	}

	if resp.RealmFromAuthBase && len(resp.Auth) > 0 {
		return string(resp.Auth)
	}

	return strings.ToLower(host)
}

// RealmMismatch reports whether a loaded session's stored realm differs
// from the realm derived for the current request. Per spec §4.5 such a
// session is "ignored for this request (not deleted)", never mutated or
// removed here.
func RealmMismatch(sess *Session, derivedRealm string) bool {
	return sess.Realm != derivedRealm
}
