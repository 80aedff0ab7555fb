package tcache

import (
	"regexp"
	"time"

	"github.com/netresearch/bengproxy/internal/resource"
	"github.com/netresearch/bengproxy/internal/translate"
)

// maxTTL bounds every entry's lifetime regardless of the declared max_age
// (spec §4.4 "TTL = min(max_age, 300s)").
const maxTTL = 300 * time.Second

// entry is one stored translation-cache record.
type entry struct {
	key     string
	expires time.Time

	vary    []string
	varyVal map[string][]byte

	base         string
	regex        *regexp.Regexp
	inverseRegex bool

	invalidate []string
	site       string

	address resource.Address
	resp    translate.Response
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.After(now)
}

// matchesVary reports whether every dimension e declared in vary[] agrees
// with req's current value for that dimension (spec §4.4 step 2:
// "per-dimension equality for strings, bytes-equal for binary").
func (e *entry) matchesVary(req translate.Request) bool {
	for _, dim := range e.vary {
		want, ok := e.varyVal[dim]
		if !ok {
			continue
		}

		got, _ := varyValue(req, dim)
		if string(got) != string(want) {
			return false
		}
	}

	return true
}

// matchesBase reports whether uri is compatible with e's base/regex
// constraints (spec §4.4 step 3). An entry without a base was already
// found under the request's own key, so it always matches.
func (e *entry) matchesBase(uri string) bool {
	if e.base == "" {
		return true
	}

	suffix, ok := cutPrefix(uri, e.base)
	if !ok {
		return false
	}

	if e.regex != nil {
		matched := e.regex.MatchString(suffix)
		if e.inverseRegex {
			return !matched
		}

		return matched
	}

	return true
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}

	return s[len(prefix):], true
}

// cacheable implements the admission predicate (spec §4.4 "Store").
func cacheable(resp *translate.Response) bool {
	if resp.MaxAge == 0 {
		return false
	}

	if resp.WWWAuthenticate != "" || resp.AuthenticationInfo != "" {
		return false
	}

	return resp.Status == 0
}

func ttl(resp *translate.Response) time.Duration {
	if resp.MaxAge > maxTTL {
		return maxTTL
	}

	return resp.MaxAge
}
