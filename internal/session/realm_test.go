package session

import (
	"testing"

	"github.com/netresearch/bengproxy/internal/translate"
	"github.com/stretchr/testify/assert"
)

func TestDeriveRealm_PrefersExplicitRealm(t *testing.T) {
	resp := &translate.Response{Realm: "explicit", Auth: []byte("auth-realm")}
	assert.Equal(t, "explicit", DeriveRealm(resp, "Example.com"))
}

func TestDeriveRealm_FallsBackToAuthBase(t *testing.T) {
	resp := &translate.Response{RealmFromAuthBase: true, Auth: []byte("auth-realm")}
	assert.Equal(t, "auth-realm", DeriveRealm(resp, "Example.com"))
}

func TestDeriveRealm_FallsBackToLowercasedHost(t *testing.T) {
	resp := &translate.Response{}
	assert.Equal(t, "example.com", DeriveRealm(resp, "Example.COM"))
}

func TestDeriveRealm_EmptyWhenNoHost(t *testing.T) {
	resp := &translate.Response{}
	assert.Equal(t, "", DeriveRealm(resp, ""))
}

func TestRealmMismatch(t *testing.T) {
	sess := &Session{Realm: "example.com"}
	assert.False(t, RealmMismatch(sess, "example.com"))
	assert.True(t, RealmMismatch(sess, "other.com"))
}
