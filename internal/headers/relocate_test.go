package headers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelocate_Success(t *testing.T) {
	got, ok := Relocate(
		"http://internal.local/app/sub/page",
		"internal.local", "/app/sub/",
		"https", "ext.example.com", "/gw/",
		"/gw/",
	)
	assert.True(t, ok)
	assert.Equal(t, "https://ext.example.com/gw/page", got)
}

func TestRelocate_RelativeURI(t *testing.T) {
	got, ok := Relocate(
		"/app/sub/page",
		"internal.local", "/app/sub/",
		"https", "ext.example.com", "/gw/",
		"/gw/",
	)
	assert.True(t, ok)
	assert.Equal(t, "https://ext.example.com/gw/page", got)
}

func TestRelocate_WrongAuthority(t *testing.T) {
	_, ok := Relocate(
		"http://other.local/app/sub/page",
		"internal.local", "/app/sub/",
		"https", "ext.example.com", "/gw/",
		"/gw/",
	)
	assert.False(t, ok)
}

func TestRelocate_ExternalPathNotUnderBase(t *testing.T) {
	_, ok := Relocate(
		"/app/sub/page",
		"internal.local", "/app/sub/",
		"https", "ext.example.com", "/other/",
		"/gw/",
	)
	assert.False(t, ok)
}

func TestRelocate_InternalPathDoesNotEndWithTail(t *testing.T) {
	_, ok := Relocate(
		"/app/sub/page",
		"internal.local", "/different/",
		"https", "ext.example.com", "/gw/sub/",
		"/gw/",
	)
	assert.False(t, ok)
}

func TestRelocate_URIPathOutsidePrefix(t *testing.T) {
	_, ok := Relocate(
		"/elsewhere/page",
		"internal.local", "/app/sub/",
		"https", "ext.example.com", "/gw/",
		"/gw/",
	)
	assert.False(t, ok)
}

func TestRelocate_NoLeadingSlash(t *testing.T) {
	_, ok := Relocate(
		"relative/page",
		"internal.local", "/app/sub/",
		"https", "ext.example.com", "/gw/",
		"/gw/",
	)
	assert.False(t, ok)
}
