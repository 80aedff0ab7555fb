package tcache

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netresearch/bengproxy/internal/translate"
)

// sweepInterval is how often the background goroutine scans for expired
// entries (spec §4.4 doesn't mandate a cadence; grounded on the teacher's
// ldap_cache TTL-sweep period of a few tens of seconds).
const sweepInterval = 30 * time.Second

// Cache is the bounded, in-process translation cache (spec §4.4). A base
// key may carry several entries at once, one per distinct Vary-dimension
// combination observed for that key ("auxiliary compare at match time",
// spec §4.4 "Key construction").
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]*entry
	bySite  map[string]map[*entry]struct{}
}

func New() *Cache {
	return &Cache{
		entries: make(map[string][]*entry),
		bySite:  make(map[string]map[*entry]struct{}),
	}
}

// Lookup implements the main-tcache algorithm (spec §4.4 steps 1-5): an
// exact match at the request's own key, falling back to a BASE walk-up by
// truncating the URI at each trailing '/'.
func (c *Cache) Lookup(req translate.Request) (*translate.Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()

	if resp, ok := c.lookupKey(Key(req), req, now, false); ok {
		return resp, true
	}

	uri := req.URI
	for {
		idx := strings.LastIndexByte(strings.TrimSuffix(uri, "/"), '/')
		if idx < 0 {
			break
		}

		uri = uri[:idx+1]

		if resp, ok := c.lookupKey(keyWithURI(req, uri), req, now, true); ok {
			return resp, true
		}

		if uri == "/" {
			break
		}
	}

	return nil, false
}

// lookupKey scans every entry stored under key, returning the first live
// one whose vary/base constraints match req. requireBase restricts the
// walk-up pass to BASE-declaring entries only.
func (c *Cache) lookupKey(key string, req translate.Request, now time.Time, requireBase bool) (*translate.Response, bool) {
	for _, e := range c.entries[key] {
		if e.expired(now) {
			continue
		}

		if requireBase && e.base == "" {
			continue
		}

		if resp, ok := reconstruct(e, req); ok {
			return resp, true
		}
	}

	return nil, false
}

func reconstruct(e *entry, req translate.Request) (*translate.Response, bool) {
	if !e.matchesVary(req) {
		return nil, false
	}

	if !e.matchesBase(req.URI) {
		return nil, false
	}

	out := e.resp

	suffix := strings.TrimPrefix(req.URI, e.base)
	out.Address = e.address.LoadBase(suffix)

	return &out, true
}

// Store admits resp into the cache under the admission predicate (spec
// §4.4 "Store"). No-op (and returns false) when resp is not cacheable or
// its declared base cannot be saved against the request's URI.
func (c *Cache) Store(req translate.Request, resp *translate.Response) bool {
	if !cacheable(resp) {
		return false
	}

	suffix := ""
	storedKey := Key(req)

	if resp.Base != "" {
		suffix = strings.TrimPrefix(req.URI, resp.Base)
		storedKey = keyWithURI(req, resp.Base)
	}

	addr, ok := resp.Address.SaveBase(suffix)
	if !ok {
		log.Debug().Str("base", resp.Base).Str("uri", req.URI).Msg("tcache: base suffix mismatch, not caching")
		return false
	}

	var re *regexp.Regexp
	if resp.Regex != "" {
		compiled, err := regexp.Compile(resp.Regex)
		if err != nil {
			log.Warn().Err(err).Str("regex", resp.Regex).Msg("tcache: invalid regex, not caching")
			return false
		}

		re = compiled
	}

	varyVal := make(map[string][]byte, len(resp.Vary))
	for _, dim := range resp.Vary {
		if v, ok := varyValue(req, dim); ok {
			varyVal[dim] = v
		}
	}

	e := &entry{
		key:          storedKey,
		expires:      time.Now().Add(ttl(resp)),
		vary:         resp.Vary,
		varyVal:      varyVal,
		base:         resp.Base,
		regex:        re,
		inverseRegex: resp.InverseRegex,
		invalidate:   resp.Invalidate,
		site:         resp.Site,
		address:      addr,
		resp:         *resp,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.replaceLocked(storedKey, e)

	if e.site != "" {
		if c.bySite[e.site] == nil {
			c.bySite[e.site] = make(map[*entry]struct{})
		}

		c.bySite[e.site][e] = struct{}{}
	}

	return true
}

// replaceLocked appends e to key's entry list, replacing any existing entry
// with an identical vary-value combination so repeated requests for the
// same variant don't grow the list unbounded.
func (c *Cache) replaceLocked(key string, e *entry) {
	list := c.entries[key]

	for i, old := range list {
		if sameVary(old.varyVal, e.varyVal) {
			c.dropFromSiteIndex(old)
			list[i] = e
			c.entries[key] = list

			return
		}
	}

	c.entries[key] = append(list, e)
}

func sameVary(a, b map[string][]byte) bool {
	if len(a) != len(b) {
		return false
	}

	for k, v := range a {
		if string(b[k]) != string(v) {
			return false
		}
	}

	return true
}

// Invalidate drops every entry whose vary[] values for dims strictly match
// req's current values (spec §4.4 "Invalidation": null != present).
func (c *Cache) Invalidate(req translate.Request, dims []string) {
	if len(dims) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, list := range c.entries {
		kept := list[:0]

		for _, e := range list {
			if entryMatchesInvalidate(e, req, dims) {
				c.dropFromSiteIndex(e)
				continue
			}

			kept = append(kept, e)
		}

		if len(kept) == 0 {
			delete(c.entries, key)
		} else {
			c.entries[key] = kept
		}
	}
}

func entryMatchesInvalidate(e *entry, req translate.Request, dims []string) bool {
	for _, dim := range dims {
		stored, ok := e.varyVal[dim]
		if !ok {
			return false
		}

		current, _ := varyValue(req, dim)
		if string(current) != string(stored) {
			return false
		}
	}

	return true
}

// InvalidateSite removes every entry whose declared site matches (spec
// §4.4 "site-scoped invalidation", dispatched here from internal/control).
func (c *Cache) InvalidateSite(site string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	victims := c.bySite[site]
	n := len(victims)

	for e := range victims {
		c.removeEntryLocked(e)
	}

	return n
}

// removeEntryLocked deletes e from its key's list and the site index.
// Caller holds c.mu.
func (c *Cache) removeEntryLocked(e *entry) {
	list := c.entries[e.key]
	kept := list[:0]

	for _, old := range list {
		if old != e {
			kept = append(kept, old)
		}
	}

	if len(kept) == 0 {
		delete(c.entries, e.key)
	} else {
		c.entries[e.key] = kept
	}

	c.dropFromSiteIndex(e)
}

// dropFromSiteIndex removes e from the site index only. Caller holds c.mu.
func (c *Cache) dropFromSiteIndex(e *entry) {
	if e.site == "" {
		return
	}

	if set, ok := c.bySite[e.site]; ok {
		delete(set, e)

		if len(set) == 0 {
			delete(c.bySite, e.site)
		}
	}
}

// Clear empties the cache (spec §4.4 "Clear() on policy change").
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string][]*entry)
	c.bySite = make(map[string]map[*entry]struct{})
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, list := range c.entries {
		n += len(list)
	}

	return n
}

// Run sweeps expired entries every sweepInterval until ctx is done.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, list := range c.entries {
		kept := list[:0]

		for _, e := range list {
			if e.expired(now) {
				c.dropFromSiteIndex(e)
				continue
			}

			kept = append(kept, e)
		}

		if len(kept) == 0 {
			delete(c.entries, key)
		} else {
			c.entries[key] = kept
		}
	}
}

// keyWithURI computes Key(req) as if req.URI were uri, for BASE walk-up
// candidates (spec §4.4 step 4).
func keyWithURI(req translate.Request, uri string) string {
	r := req
	r.URI = uri

	return Key(r)
}
