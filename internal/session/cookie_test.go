package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieName_StaticTemplate(t *testing.T) {
	assert.Equal(t, "beng_proxy_session", CookieName("beng_proxy_session", "example.com", false))
}

func TestCookieName_DynamicAppendsStableCRC(t *testing.T) {
	name1 := CookieName("beng_proxy_session", "example.com", true)
	name2 := CookieName("beng_proxy_session", "example.com", true)
	name3 := CookieName("beng_proxy_session", "other.example.com", true)

	require.Len(t, name1, len("beng_proxy_session")+4)
	assert.Equal(t, name1, name2)
	assert.NotEqual(t, name1, name3)
}

func TestCookieAttributes_DefaultsAndOrder(t *testing.T) {
	got := CookieAttributes("", false, "")
	assert.Equal(t, "HttpOnly; Path=/; Version=1; Discard", got)
}

func TestCookieAttributes_SecureAndDomainBeforeDiscard(t *testing.T) {
	got := CookieAttributes("/app", true, "example.com")
	assert.Equal(t, `HttpOnly; Path=/app; Version=1; Secure; Domain="example.com"; Discard`, got)
}

func TestExtractID_PrefersCookieOverQuery(t *testing.T) {
	id, fromCookie, ok := ExtractID("2a", "ff")
	require.True(t, ok)
	assert.True(t, fromCookie)
	assert.Equal(t, ID(0x2a), id)
}

func TestExtractID_FallsBackToQuery(t *testing.T) {
	id, fromCookie, ok := ExtractID("", "ff")
	require.True(t, ok)
	assert.False(t, fromCookie)
	assert.Equal(t, ID(0xff), id)
}

func TestExtractID_NoneFound(t *testing.T) {
	_, _, ok := ExtractID("", "")
	assert.False(t, ok)
}

func TestFormatID_RoundTripsThroughExtractID(t *testing.T) {
	id := ID(0x123456789abcdef0)
	formatted := FormatID(id)

	got, _, ok := ExtractID(formatted, "")
	require.True(t, ok)
	assert.Equal(t, id, got)
}
