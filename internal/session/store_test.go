package session

import (
	"testing"
	"time"

	"github.com/gofiber/storage/memory/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(memory.New(), time.Hour)
}

func TestStore_NewGetPutRoundTrip(t *testing.T) {
	s := newTestStore()

	lease, err := s.New(0x01, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "example.com", lease.Session.Realm)
	assert.Equal(t, byte(0x01), lease.Session.ID.ClusterTag())

	lease.Session.User = "alice"
	lease.Session.Language = "en"
	require.NoError(t, s.Put(lease))

	got, ok, err := s.Get(lease.Session.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Session.User)
	assert.Equal(t, "en", got.Session.Language)
	assert.Equal(t, "example.com", got.Session.Realm)
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore()

	_, ok, err := s.Get(ID(0xdeadbeef))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore()

	lease, err := s.New(0x01, "example.com")
	require.NoError(t, err)

	require.NoError(t, s.Delete(lease.Session.ID))

	_, ok, err := s.Get(lease.Session.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_PurgeScore_RemovesStaleSessions(t *testing.T) {
	s := newTestStore()

	lease, err := s.New(0x01, "example.com")
	require.NoError(t, err)

	s.mu.Lock()
	s.index[lease.Session.ID] = time.Now().Add(-time.Hour)
	s.mu.Unlock()

	removed, err := s.PurgeScore(60)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), removed)

	_, ok, err := s.Get(lease.Session.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_PurgeScore_KeepsFreshSessions(t *testing.T) {
	s := newTestStore()

	lease, err := s.New(0x01, "example.com")
	require.NoError(t, err)

	removed, err := s.PurgeScore(3600)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), removed)

	_, ok, err := s.Get(lease.Session.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
