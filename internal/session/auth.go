package session

import "time"

// AuthToken composes the AUTH continuation token from the response's Auth
// field plus an optional append_auth suffix (spec §4.5 "possibly loaded
// from auth_file and optionally appended with append_auth").
func AuthToken(auth, appendAuth []byte) []byte {
	if len(appendAuth) == 0 {
		return auth
	}

	out := make([]byte, 0, len(auth)+len(appendAuth))
	out = append(out, auth...)
	out = append(out, appendAuth...)

	return out
}

// NeedsSubordinateAuth reports whether the realm session lacks a
// non-expired user, meaning the orchestrator must issue a subordinate
// translate request with AUTH=<token> rather than short-circuiting (spec
// §4.5 "if it has a non-expired user, short-circuit; else issue a
// subordinate translate").
func NeedsSubordinateAuth(sess *Session, now time.Time) bool {
	if sess == nil {
		return true
	}

	return !sess.UserValid(now)
}

// ApplyAuthResult binds a subordinate translate's returned USER onto the
// session, reporting whether authentication succeeded. The orchestrator
// must respond 403 when ok is false (spec §4.5 "The orchestrator accepts
// only successful USER back; without a user it responds 403").
func ApplyAuthResult(lease *Lease, user string, maxAge time.Duration, now time.Time) bool {
	if user == "" {
		return false
	}

	lease.Session.User = user

	if maxAge > 0 {
		lease.Session.UserExpiry = now.Add(maxAge)
	} else {
		lease.Session.UserExpiry = time.Time{}
	}

	return true
}
