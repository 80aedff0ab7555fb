package tcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netresearch/bengproxy/internal/resource"
	"github.com/netresearch/bengproxy/internal/translate"
)

func TestCache_StoreAndLookup_ExactHit(t *testing.T) {
	c := New()
	req := translate.Request{URI: "/index.html"}
	resp := &translate.Response{
		MaxAge:  60 * time.Second,
		Address: resource.Address{Kind: resource.LocalFile, Path: "/var/www/index.html"},
	}

	require.True(t, c.Store(req, resp))

	got, ok := c.Lookup(req)
	require.True(t, ok)
	assert.Equal(t, "/var/www/index.html", got.Address.Path)
}

func TestCache_Store_RejectsNonCacheable(t *testing.T) {
	c := New()
	req := translate.Request{URI: "/x"}

	assert.False(t, c.Store(req, &translate.Response{MaxAge: 0}))
	assert.False(t, c.Store(req, &translate.Response{MaxAge: time.Second, WWWAuthenticate: "Basic"}))
	assert.False(t, c.Store(req, &translate.Response{MaxAge: time.Second, Status: 404}))
}

func TestCache_BaseWalkUp(t *testing.T) {
	c := New()
	storeReq := translate.Request{URI: "/widgets/"}
	resp := &translate.Response{
		MaxAge:  60 * time.Second,
		Base:    "/widgets/",
		Address: resource.Address{Kind: resource.LocalFile, Path: "/srv/widgets/"},
	}

	require.True(t, c.Store(storeReq, resp))

	lookupReq := translate.Request{URI: "/widgets/foo/bar.html"}
	got, ok := c.Lookup(lookupReq)
	require.True(t, ok)
	assert.Equal(t, "/srv/widgets/foo/bar.html", got.Address.Path)
}

func TestCache_VaryMismatchMisses(t *testing.T) {
	c := New()
	storeReq := translate.Request{URI: "/qs", QueryString: "a=1"}
	resp := &translate.Response{
		MaxAge: 60 * time.Second,
		Vary:   []string{"QUERY_STRING"},
	}

	require.True(t, c.Store(storeReq, resp))

	_, ok := c.Lookup(translate.Request{URI: "/qs", QueryString: "a=1"})
	assert.True(t, ok)

	_, ok = c.Lookup(translate.Request{URI: "/qs", QueryString: "a=2"})
	assert.False(t, ok)
}

func TestCache_Invalidate_StrictMatch(t *testing.T) {
	c := New()

	req1 := translate.Request{URI: "/qs", QueryString: "a=1"}
	require.True(t, c.Store(req1, &translate.Response{MaxAge: 60 * time.Second, Vary: []string{"QUERY_STRING"}}))

	req2 := translate.Request{URI: "/qs", QueryString: "a=2"}
	require.True(t, c.Store(req2, &translate.Response{MaxAge: 60 * time.Second, Vary: []string{"QUERY_STRING"}}))

	// Invalidating with a.=1 drops only the a=1 entry.
	c.Invalidate(req1, []string{"QUERY_STRING"})

	_, ok := c.Lookup(req1)
	assert.False(t, ok)

	_, ok = c.Lookup(req2)
	assert.True(t, ok)
}

func TestCache_InvalidateSite(t *testing.T) {
	c := New()
	req := translate.Request{URI: "/a"}
	require.True(t, c.Store(req, &translate.Response{MaxAge: 60 * time.Second, Site: "example.com"}))

	n := c.InvalidateSite("example.com")
	assert.Equal(t, 1, n)

	_, ok := c.Lookup(req)
	assert.False(t, ok)
}

func TestCache_Clear(t *testing.T) {
	c := New()
	req := translate.Request{URI: "/a"}
	require.True(t, c.Store(req, &translate.Response{MaxAge: 60 * time.Second}))

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_ErrorDocumentKeyIsNamespaced(t *testing.T) {
	req := translate.Request{URI: "/x", ErrorDocumentStatus: 404}
	assert.Equal(t, "ERR404_/x", Key(req))
}
