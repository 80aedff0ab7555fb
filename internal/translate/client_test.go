package translate

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netresearch/bengproxy/internal/wire"
)

// fakeServer reads one request transaction off conn and writes back a
// canned response transaction, mimicking a translation server for tests.
func fakeServer(t *testing.T, conn net.Conn) {
	t.Helper()

	r := wire.NewReader(conn)
	for {
		p, err := r.ReadPacket()
		require.NoError(t, err)
		if p.Command == wire.End {
			break
		}
	}

	w := wire.NewWriter(conn)
	require.NoError(t, w.WritePacket(wire.Status, []byte{200}))
	require.NoError(t, w.WritePacket(wire.Path, []byte("/var/www/index.html")))
	require.NoError(t, w.WriteEmpty(wire.End))
}

func TestClient_Translate_Success(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go fakeServer(t, serverConn)

	c := NewClient(func(ctx context.Context) (net.Conn, error) {
		return clientConn, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.Translate(ctx, Request{URI: "/index.html", Host: "example.com"})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "/var/www/index.html", resp.Address.Path)
}

func TestClient_Translate_DialError(t *testing.T) {
	c := NewClient(func(ctx context.Context) (net.Conn, error) {
		return nil, assertErr{}
	})

	_, err := c.Translate(context.Background(), Request{URI: "/"})
	assert.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "dial failed" }
