package control

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netresearch/bengproxy/internal/resource"
	"github.com/netresearch/bengproxy/internal/tcache"
	"github.com/netresearch/bengproxy/internal/translate"
	"github.com/netresearch/bengproxy/internal/wire"
)

func packetBytes(t *testing.T, cmd wire.Command, payload []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, wire.NewWriter(&buf).WritePacket(cmd, payload))

	return buf.Bytes()
}

func TestListener_TCacheInvalidateRemovesSiteEntries(t *testing.T) {
	cache := tcache.New()
	req := translate.Request{URI: "/a"}
	resp := &translate.Response{
		MaxAge:  time.Minute,
		Site:    "example.test",
		Address: resource.Address{Kind: resource.LocalFile, Path: "/var/www/a"},
	}
	require.True(t, cache.Store(req, resp))

	l, err := Listen("127.0.0.1:0", cache)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = l.Run(ctx) }()

	client, err := net.Dial("udp", l.conn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write(packetBytes(t, wire.TCacheInvalidate, []byte("example.test")))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := cache.Lookup(req)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestListener_UnknownOpcodeDropped(t *testing.T) {
	cache := tcache.New()

	l, err := Listen("127.0.0.1:0", cache)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = l.Run(ctx) }()

	client, err := net.Dial("udp", l.conn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write(packetBytes(t, wire.DumpPools, nil))
	require.NoError(t, err)

	// No crash, no effect: give the goroutine time to process before the
	// test tears down the listener.
	time.Sleep(20 * time.Millisecond)
}
