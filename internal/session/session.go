// Package session implements the session-binding glue of spec §4.5/§6: a
// Session type keyed by a 64-bit id that embeds a cluster tag, a Store
// contract satisfied by teacher-grounded storage backends, realm derivation,
// cookie naming/attributes, and the AUTH/external-session-manager flows the
// orchestrator drives.
package session

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/netresearch/bengproxy/internal/headers"
)

// ID is a 64-bit session identifier. The low byte embeds a cluster tag so a
// fleet of workers sharing one store can tell which node minted an id
// without a lookup (spec §3 "a 64-bit SessionId that embeds a cluster-hash").
type ID uint64

// NewID mints a random session id with the given cluster tag in its low
// byte.
func NewID(clusterTag byte) (ID, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}

	buf[7] = clusterTag

	return ID(binary.BigEndian.Uint64(buf[:])), nil
}

// ClusterTag extracts the low byte an id was minted with.
func (id ID) ClusterTag() byte {
	return byte(id)
}

// Session is the abstract per-user state the core never originates, only
// binds to a request (spec §3 "Session (abstract; provided externally)").
type Session struct {
	ID ID

	Realm string

	User       string
	UserExpiry time.Time

	Language string

	// TranslateBlob is the opaque SESSION bytes a translate server stores
	// and echoes back; the core never interprets it.
	TranslateBlob []byte

	// WidgetState holds per-widget session-scoped key/value state, opaque
	// to the core beyond storage (spec §3 "per-widget state").
	WidgetState map[string]string

	Cookies *headers.CookieJar

	lastAccess time.Time
}

func newSession(id ID, realm string) *Session {
	return &Session{
		ID:          id,
		Realm:       realm,
		WidgetState: make(map[string]string),
		Cookies:     headers.NewCookieJar(),
		lastAccess:  time.Now(),
	}
}

// UserValid reports whether User is set and UserExpiry (zero meaning no
// expiry) has not passed.
func (s *Session) UserValid(now time.Time) bool {
	if s.User == "" {
		return false
	}

	return s.UserExpiry.IsZero() || now.Before(s.UserExpiry)
}
